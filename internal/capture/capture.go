// Package capture provides the concrete frame sources and the estimator
// used by the acquisition manager.
//
// The camera and the pose model run in a tracking sidecar. In camera mode
// the sidecar streams one result document per frame over UDP; in video mode
// a recording of such documents is played back from disk. Either way the
// frame payload already is the estimator result, so the estimator is a
// passthrough.
package capture

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"

	"github.com/banshee-data/rigcam/internal/acquisition"
	"github.com/banshee-data/rigcam/internal/timeutil"
)

var (
	ErrEstimatorClosed = errors.New("capture: estimator closed")
	ErrEmptyPayload    = errors.New("capture: frame has no result payload")
)

// Passthrough returns each frame's payload as the result document.
type Passthrough struct {
	closed atomic.Bool
}

var _ acquisition.Estimator = (*Passthrough)(nil)

func (p *Passthrough) Estimate(ctx context.Context, f acquisition.Frame) (json.RawMessage, error) {
	if p.closed.Load() {
		return nil, ErrEstimatorClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(f.Payload) == 0 {
		return nil, ErrEmptyPayload
	}
	return f.Payload, nil
}

func (p *Passthrough) Close() error {
	p.closed.Store(true)
	return nil
}

// Options selects the source for each mode.
type Options struct {
	UDP UDPConfig
	// RecordingPath is played in video mode.
	RecordingPath string
	// Clock paces recordings.
	Clock timeutil.Clock
}

// Sources returns a factory building a UDPStream for camera mode and a
// Recording for video mode. onNew, if set, sees every source built.
func Sources(opts Options, onNew func(acquisition.Source)) acquisition.SourceFactory {
	return func(mode acquisition.Mode) (acquisition.Source, error) {
		var src acquisition.Source
		switch mode {
		case acquisition.ModeCamera:
			src = NewUDPStream(opts.UDP)
		case acquisition.ModeVideo:
			if opts.RecordingPath == "" {
				return nil, ErrNoRecording
			}
			src = NewRecording(opts.RecordingPath, opts.Clock)
		default:
			return nil, errors.New("capture: unsupported mode " + mode.String())
		}
		if onNew != nil {
			onNew(src)
		}
		return src, nil
	}
}

// Estimators returns a factory building a Passthrough for every mode.
func Estimators() acquisition.EstimatorFactory {
	return func(acquisition.Mode) (acquisition.Estimator, error) {
		return &Passthrough{}, nil
	}
}
