package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/rigcam/internal/retarget"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// Smoothing presets selectable with smoothing_preset.
var presets = map[string]retarget.Smoothing{
	"default":    retarget.DefaultSmoothing,
	"responsive": retarget.ResponsiveSmoothing,
}

// TuningConfig is the root tuning configuration. Every field is optional;
// the Get* accessors supply defaults for omitted ones.
type TuningConfig struct {
	// Smoothing. The preset is applied first; per-class fields override it.
	SmoothingPreset *string  `json:"smoothing_preset,omitempty"`
	SmoothingHead   *float64 `json:"smoothing_head,omitempty"`
	SmoothingNeck   *float64 `json:"smoothing_neck,omitempty"`
	SmoothingSpine  *float64 `json:"smoothing_spine,omitempty"`
	SmoothingArms   *float64 `json:"smoothing_arms,omitempty"`
	SmoothingHands  *float64 `json:"smoothing_hands,omitempty"`
	SmoothingFace   *float64 `json:"smoothing_face,omitempty"`
	MirrorBlink     *bool    `json:"mirror_blink,omitempty"`

	// Acquisition
	Holistic             *bool   `json:"holistic,omitempty"`
	ReadyPollInterval    *string `json:"ready_poll_interval,omitempty"` // duration string like "100ms"
	ReadyTimeoutFace     *string `json:"ready_timeout_face,omitempty"`
	ReadyTimeoutHolistic *string `json:"ready_timeout_holistic,omitempty"`
	RetryBackoff         *string `json:"retry_backoff,omitempty"`
	MaxRetries           *int    `json:"max_retries,omitempty"`

	// Scheduler
	RenderFPS     *int    `json:"render_fps,omitempty"`
	TraceChannel  *string `json:"trace_channel,omitempty"` // e.g. "Head.x"
	TraceCapacity *int    `json:"trace_capacity,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted
// from the file fall back to defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadDefaultConfig loads DefaultConfigPath relative to the working
// directory. A missing file yields an empty config; the getters then supply
// every default.
func LoadDefaultConfig() (*TuningConfig, error) {
	cfg, err := LoadTuningConfig(DefaultConfigPath)
	if errors.Is(err, fs.ErrNotExist) {
		return EmptyTuningConfig(), nil
	}
	return cfg, err
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.SmoothingPreset != nil {
		if _, ok := presets[*c.SmoothingPreset]; !ok {
			return fmt.Errorf("unknown smoothing_preset %q", *c.SmoothingPreset)
		}
	}
	if err := c.GetSmoothing().Validate(); err != nil {
		return err
	}

	durations := []struct {
		name string
		v    *string
	}{
		{"ready_poll_interval", c.ReadyPollInterval},
		{"ready_timeout_face", c.ReadyTimeoutFace},
		{"ready_timeout_holistic", c.ReadyTimeoutHolistic},
		{"retry_backoff", c.RetryBackoff},
	}
	for _, d := range durations {
		if d.v == nil || *d.v == "" {
			continue
		}
		v, err := time.ParseDuration(*d.v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", d.name, *d.v, err)
		}
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, v)
		}
	}

	if c.MaxRetries != nil && *c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative, got %d", *c.MaxRetries)
	}
	if c.RenderFPS != nil && (*c.RenderFPS < 1 || *c.RenderFPS > 240) {
		return fmt.Errorf("render_fps must be between 1 and 240, got %d", *c.RenderFPS)
	}
	if c.TraceCapacity != nil && *c.TraceCapacity < 0 {
		return fmt.Errorf("trace_capacity must be non-negative, got %d", *c.TraceCapacity)
	}
	return nil
}

// GetSmoothingPreset returns the smoothing_preset value or the default.
func (c *TuningConfig) GetSmoothingPreset() string {
	if c.SmoothingPreset == nil {
		return "default"
	}
	return *c.SmoothingPreset
}

// GetSmoothing resolves the preset and applies per-class overrides.
func (c *TuningConfig) GetSmoothing() retarget.Smoothing {
	s, ok := presets[c.GetSmoothingPreset()]
	if !ok {
		s = retarget.DefaultSmoothing
	}
	overrides := []struct {
		v   *float64
		dst *float64
	}{
		{c.SmoothingHead, &s.Head},
		{c.SmoothingNeck, &s.Neck},
		{c.SmoothingSpine, &s.Spine},
		{c.SmoothingArms, &s.Arms},
		{c.SmoothingHands, &s.Hands},
		{c.SmoothingFace, &s.Face},
	}
	for _, o := range overrides {
		if o.v != nil {
			*o.dst = *o.v
		}
	}
	return s
}

// GetMirrorBlink returns the mirror_blink value or the default.
func (c *TuningConfig) GetMirrorBlink() bool {
	if c.MirrorBlink == nil {
		return true // camera images are mirrored before estimation
	}
	return *c.MirrorBlink
}

// GetHolistic returns the holistic value or the default.
func (c *TuningConfig) GetHolistic() bool {
	if c.Holistic == nil {
		return true
	}
	return *c.Holistic
}

func parseDuration(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// GetReadyPollInterval returns how often source readiness is polled.
func (c *TuningConfig) GetReadyPollInterval() time.Duration {
	return parseDuration(c.ReadyPollInterval, 100*time.Millisecond)
}

// GetReadyTimeoutFace returns the readiness timeout for face-only tracking.
func (c *TuningConfig) GetReadyTimeoutFace() time.Duration {
	return parseDuration(c.ReadyTimeoutFace, 15*time.Second)
}

// GetReadyTimeoutHolistic returns the readiness timeout when face, body and
// hands are all tracked.
func (c *TuningConfig) GetReadyTimeoutHolistic() time.Duration {
	return parseDuration(c.ReadyTimeoutHolistic, 20*time.Second)
}

// GetReadyTimeout returns the timeout for the configured tracking mode.
func (c *TuningConfig) GetReadyTimeout() time.Duration {
	if c.GetHolistic() {
		return c.GetReadyTimeoutHolistic()
	}
	return c.GetReadyTimeoutFace()
}

// GetRetryBackoff returns the retry_backoff value or the default.
func (c *TuningConfig) GetRetryBackoff() time.Duration {
	return parseDuration(c.RetryBackoff, 2*time.Second)
}

// GetMaxRetries returns the max_retries value or the default.
func (c *TuningConfig) GetMaxRetries() int {
	if c.MaxRetries == nil {
		return 3
	}
	return *c.MaxRetries
}

// GetRenderFPS returns the render_fps value or the default.
func (c *TuningConfig) GetRenderFPS() int {
	if c.RenderFPS == nil {
		return 60
	}
	return *c.RenderFPS
}

// GetTraceChannel returns the trace_channel value or the default.
func (c *TuningConfig) GetTraceChannel() string {
	if c.TraceChannel == nil {
		return "Head.x"
	}
	return *c.TraceChannel
}

// GetTraceCapacity returns the trace_capacity value or the default.
func (c *TuningConfig) GetTraceCapacity() int {
	if c.TraceCapacity == nil {
		return 600
	}
	return *c.TraceCapacity
}
