package monitoring

import (
	"bytes"
	"strings"
	"testing"
)

func TestSetLogger(t *testing.T) {
	// Save original logger
	original := Logf
	defer func() { Logf = original }()

	// Test setting a custom logger
	called := false
	customLogger := func(format string, v ...interface{}) {
		called = true
	}

	SetLogger(customLogger)
	Logf("test message")

	if !called {
		t.Error("Custom logger was not called")
	}

	// Test setting nil logger (should create no-op)
	SetLogger(nil)
	// This should not panic
	Logf("test message")

	// Verify the logger is a no-op by checking it doesn't panic
	// and doesn't call anything
	noOpCalled := false
	testLogger := func(format string, v ...interface{}) {
		noOpCalled = true
	}
	SetLogger(testLogger)
	// First verify our test logger works
	Logf("test")
	if !noOpCalled {
		t.Error("Test logger should have been called")
	}

	// Now set to nil and verify it doesn't call our logger
	noOpCalled = false
	SetLogger(nil)
	Logf("test")
	if noOpCalled {
		t.Error("No-op logger should not have triggered callback")
	}
}

func TestLogf_Default(t *testing.T) {
	// Test that Logf is not nil by default
	if Logf == nil {
		t.Error("Logf should not be nil by default")
	}

	// Test that we can call it without panic
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("Logf panicked: %v", r)
		}
	}()

	Logf("test message: %s", "value")
}

func TestStreams_RoutesByLevel(t *testing.T) {
	s := NewStreams("[test] ")
	var ops, diag bytes.Buffer
	s.SetWriters(&ops, &diag, nil)

	s.Opsf("source lost: %s", "camera")
	s.Diagf("attempt %d", 2)
	s.Tracef("frame %d", 7)

	if !strings.Contains(ops.String(), "[test] source lost: camera") {
		t.Errorf("ops stream = %q", ops.String())
	}
	if !strings.Contains(diag.String(), "attempt 2") {
		t.Errorf("diag stream = %q", diag.String())
	}
	if strings.Contains(ops.String()+diag.String(), "frame 7") {
		t.Error("trace output leaked into another stream")
	}
}

func TestSetLogWriters_AppliesToRegisteredStreams(t *testing.T) {
	a := NewStreams("[a] ")
	b := NewStreams("[b] ")
	var trace bytes.Buffer
	SetLogWriters(nil, nil, &trace)
	defer SetLogWriters(nil, nil, nil)

	a.Tracef("one")
	b.Tracef("two")
	a.Opsf("muted")

	out := trace.String()
	if !strings.Contains(out, "[a] ") || !strings.Contains(out, "[b] ") {
		t.Errorf("trace = %q, want both prefixes", out)
	}
	if strings.Contains(out, "muted") {
		t.Error("ops stream should be disabled")
	}
}
