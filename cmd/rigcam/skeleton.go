package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"

	"tailscale.com/tsweb"

	"github.com/banshee-data/rigcam/internal/httputil"
	"github.com/banshee-data/rigcam/internal/scheduler"
	"github.com/banshee-data/rigcam/internal/skeleton"
)

var (
	errNoSkeletonPath = errors.New("no skeleton descriptor given")
	errBadDescriptor  = errors.New("cannot load skeleton descriptor")
)

type teardowner interface {
	SwitchSkeleton(bind func() error) error
}

type skeletonBinder interface {
	SetSkeleton(*skeleton.Skeleton) error
	Skeleton() *skeleton.Skeleton
	Slot() *scheduler.Slot
}

// skeletonSwitcher replaces the avatar while the service runs. Acquisition
// is torn down around the swap, and the slot is emptied so the last frame of
// the old session never lands on the new joint table.
type skeletonSwitcher struct {
	mgr   teardowner
	sched skeletonBinder

	mu   sync.Mutex
	path string
}

func newSkeletonSwitcher(mgr teardowner, sched skeletonBinder, path string) *skeletonSwitcher {
	return &skeletonSwitcher{mgr: mgr, sched: sched, path: path}
}

func (s *skeletonSwitcher) current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// Switch loads the descriptor at path, or re-reads the current one when path
// is empty. A descriptor that fails to load leaves acquisition running.
func (s *skeletonSwitcher) Switch(path string) (*skeleton.Skeleton, error) {
	if path == "" {
		path = s.current()
	}
	if path == "" {
		return nil, errNoSkeletonPath
	}
	sk, err := skeleton.Load(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errBadDescriptor, err)
	}
	err = s.mgr.SwitchSkeleton(func() error {
		s.sched.Slot().Reset()
		return s.sched.SetSkeleton(sk)
	})
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.path = path
	s.mu.Unlock()
	log.Printf("switched skeleton to %s (%d joints)", sk.Source, len(sk.Joints()))
	return sk, nil
}

// ReloadSkeleton re-reads the current descriptor from disk.
func (s *skeletonSwitcher) ReloadSkeleton() error {
	_, err := s.Switch("")
	return err
}

type skeletonInfo struct {
	Path   string `json:"path"`
	ID     string `json:"id,omitempty"`
	Joints int    `json:"joints"`
}

func (s *skeletonSwitcher) info() skeletonInfo {
	in := skeletonInfo{Path: s.current()}
	if sk := s.sched.Skeleton(); sk != nil {
		in.ID = sk.ID
		in.Joints = len(sk.Joints())
	}
	return in
}

// AttachAdminRoutes mounts /debug/skeleton. GET reports the loaded avatar;
// POST with path=<descriptor> switches to it, and without path reloads the
// current one.
func (s *skeletonSwitcher) AttachAdminRoutes(mux *http.ServeMux) {
	tsweb.Debugger(mux).HandleFunc("skeleton", "loaded avatar; POST path=<descriptor> to switch", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			httputil.WriteJSONOK(w, s.info())
		case http.MethodPost:
			_, err := s.Switch(r.FormValue("path"))
			switch {
			case errors.Is(err, errNoSkeletonPath), errors.Is(err, errBadDescriptor):
				httputil.BadRequest(w, err.Error())
			case err != nil:
				httputil.InternalServerError(w, err.Error())
			default:
				httputil.WriteJSONOK(w, s.info())
			}
		default:
			httputil.MethodNotAllowed(w)
		}
	})
}
