// Package monitoring holds the diagnostic logging hooks shared by the
// runtime packages.
//
// Logging follows three streams:
//   - ops: actionable warnings, errors, lost tracking sources
//   - diag: day-to-day diagnostics and tuning context
//   - trace: per-frame telemetry, off unless explicitly enabled
package monitoring

import (
	"io"
	"log"
	"sync"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Streams is a prefixed ops/diag/trace logger triple owned by one package.
type Streams struct {
	prefix string

	mu    sync.RWMutex
	ops   *log.Logger
	diag  *log.Logger
	trace *log.Logger
}

var (
	registryMu sync.Mutex
	registry   []*Streams
)

// NewStreams returns streams with ops routed to the standard logger's writer
// and diag/trace disabled. Every Streams is registered so SetLogWriters can
// reconfigure the whole process at once.
func NewStreams(prefix string) *Streams {
	s := &Streams{prefix: prefix}
	s.SetWriters(log.Writer(), nil, nil)

	registryMu.Lock()
	registry = append(registry, s)
	registryMu.Unlock()
	return s
}

// SetLogWriters configures every registered Streams. Pass nil for any
// writer to disable that stream.
func SetLogWriters(ops, diag, trace io.Writer) {
	registryMu.Lock()
	defer registryMu.Unlock()
	for _, s := range registry {
		s.SetWriters(ops, diag, trace)
	}
}

// SetWriters configures this package's streams only.
func (s *Streams) SetWriters(ops, diag, trace io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = newLogger(s.prefix, ops)
	s.diag = newLogger(s.prefix, diag)
	s.trace = newLogger(s.prefix, trace)
}

func newLogger(prefix string, w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, prefix, log.LstdFlags|log.Lmicroseconds)
}

// Opsf logs to the ops stream.
func (s *Streams) Opsf(format string, args ...interface{}) {
	s.mu.RLock()
	l := s.ops
	s.mu.RUnlock()
	if l != nil {
		l.Printf(format, args...)
	}
}

// Diagf logs to the diag stream.
func (s *Streams) Diagf(format string, args ...interface{}) {
	s.mu.RLock()
	l := s.diag
	s.mu.RUnlock()
	if l != nil {
		l.Printf(format, args...)
	}
}

// Tracef logs to the trace stream.
func (s *Streams) Tracef(format string, args ...interface{}) {
	s.mu.RLock()
	l := s.trace
	s.mu.RUnlock()
	if l != nil {
		l.Printf(format, args...)
	}
}
