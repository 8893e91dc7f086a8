package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/rigcam/internal/retarget"
	"github.com/banshee-data/rigcam/internal/rig"
	"github.com/banshee-data/rigcam/internal/scheduler"
	"github.com/banshee-data/rigcam/internal/testutil"
)

const exampleAvatar = "../../config/avatar.example.json"

// recordingTeardown stands in for the acquisition manager and records the
// order of teardown, bind and restart.
type recordingTeardown struct {
	steps []string
	err   error
}

func (r *recordingTeardown) SwitchSkeleton(bind func() error) error {
	if r.err != nil {
		return r.err
	}
	r.steps = append(r.steps, "stop")
	err := bind()
	r.steps = append(r.steps, "bind", "start")
	return err
}

func newTestScheduler(t *testing.T) *scheduler.Scheduler {
	t.Helper()
	return scheduler.New(scheduler.Options{Retarget: retarget.Options{Smoothing: retarget.DefaultSmoothing}})
}

func writeAvatar(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "avatar.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestSkeletonSwitcher_Switch(t *testing.T) {
	sched := newTestScheduler(t)
	first := writeAvatar(t, `{"root": {"name": "Hips", "children": [{"name": "Head"}]}}`)
	td := &recordingTeardown{}
	sw := newSkeletonSwitcher(td, sched, first)
	_, err := sw.Switch("")
	require.NoError(t, err)
	old := sched.Skeleton()

	sched.Publish(&rig.Frame{Head: &rig.Rotation{X: 0.5}})
	td.steps = nil
	sk, err := sw.Switch(exampleAvatar)
	require.NoError(t, err)

	assert.Equal(t, []string{"stop", "bind", "start"}, td.steps)
	assert.Same(t, sk, sched.Skeleton())
	assert.NotEqual(t, old.ID, sk.ID)
	_, ok := sched.Slot().Load()
	assert.False(t, ok, "old session's frame must not reach the new skeleton")
	assert.Equal(t, filepath.Clean(exampleAvatar), sw.current())

	sched.Tick()
	assert.Equal(t, uint64(1), sched.Stats().Idle)
}

func TestSkeletonSwitcher_BadDescriptorKeepsSession(t *testing.T) {
	sched := newTestScheduler(t)
	td := &recordingTeardown{}
	sw := newSkeletonSwitcher(td, sched, exampleAvatar)
	require.NoError(t, sw.ReloadSkeleton())
	loaded := sched.Skeleton()
	td.steps = nil

	bad := writeAvatar(t, `{"root": {"name": "Hips", "rotation": {"x": 7, "y": 0, "z": 0}}}`)
	_, err := sw.Switch(bad)
	assert.ErrorIs(t, err, errBadDescriptor)
	assert.Empty(t, td.steps, "acquisition untouched")
	assert.Same(t, loaded, sched.Skeleton())
	assert.Equal(t, exampleAvatar, sw.current())
}

func TestSkeletonSwitcher_NoPath(t *testing.T) {
	sw := newSkeletonSwitcher(&recordingTeardown{}, newTestScheduler(t), "")
	assert.ErrorIs(t, sw.ReloadSkeleton(), errNoSkeletonPath)
}

func TestSkeletonSwitcher_ManagerClosed(t *testing.T) {
	closed := errors.New("acquisition: manager closed")
	sched := newTestScheduler(t)
	sw := newSkeletonSwitcher(&recordingTeardown{err: closed}, sched, exampleAvatar)
	assert.ErrorIs(t, sw.ReloadSkeleton(), closed)
	assert.Nil(t, sched.Skeleton())
}

func TestSkeletonSwitcher_AdminRoutes(t *testing.T) {
	td := &recordingTeardown{}
	sw := newSkeletonSwitcher(td, newTestScheduler(t), "")
	mux := http.NewServeMux()
	sw.AttachAdminRoutes(mux)

	w := testutil.Serve(mux, http.MethodGet, "/debug/skeleton")
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)

	w = testutil.Serve(mux, http.MethodPost, "/debug/skeleton")
	testutil.AssertStatusCode(t, w.Code, http.StatusBadRequest)

	w = testutil.Serve(mux, http.MethodPost, "/debug/skeleton?path="+url.QueryEscape("/nonexistent/avatar.json"))
	testutil.AssertStatusCode(t, w.Code, http.StatusBadRequest)

	w = testutil.Serve(mux, http.MethodPost, "/debug/skeleton?path="+url.QueryEscape(exampleAvatar))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	var info skeletonInfo
	require.NoError(t, json.NewDecoder(w.Body).Decode(&info))
	assert.NotEmpty(t, info.ID)
	assert.Positive(t, info.Joints)
	assert.Equal(t, []string{"stop", "bind", "start"}, td.steps)

	w = testutil.Serve(mux, http.MethodDelete, "/debug/skeleton")
	testutil.AssertStatusCode(t, w.Code, http.StatusMethodNotAllowed)
}
