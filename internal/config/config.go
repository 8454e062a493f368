// Package config provides configuration management for the keyframe extractor.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration with thread-safe access.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Server    ServerConfig    `yaml:"server"`
	Profiling ProfilingConfig `yaml:"profiling"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	VideoPath string          `yaml:"video_path"`
	Output    OutputConfig    `yaml:"output"`
	Keyframe  KeyframeConfig  `yaml:"keyframe"`
	Debug     DebugConfig     `yaml:"debug"`
	mu        sync.RWMutex
}

// Snapshot is a read-only snapshot of the current configuration.
type Snapshot struct {
	Log       LogConfig       `yaml:"log" json:"log"`
	Server    ServerConfig    `yaml:"server" json:"server"`
	Profiling ProfilingConfig `yaml:"profiling" json:"profiling"`
	Catalog   CatalogConfig   `yaml:"catalog" json:"catalog"`
	VideoPath string          `yaml:"video_path" json:"video_path"`
	Output    OutputConfig    `yaml:"output" json:"output"`
	Keyframe  KeyframeConfig  `yaml:"keyframe" json:"keyframe"`
	Debug     DebugConfig     `yaml:"debug" json:"debug"`
}

// LogConfig selects the zerolog level and output format.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
}

// ProfilingConfig controls the pprof/fgprof side server.
type ProfilingConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
}

// CatalogConfig controls the SQLite run catalog.
type CatalogConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

// OutputConfig describes where and how keyframes are written.
type OutputConfig struct {
	Dir            string `yaml:"dir" json:"dir"`
	MaskDir        string `yaml:"mask_dir" json:"mask_dir"`
	ImageExtension string `yaml:"image_extension" json:"image_extension"`
	JPEGQuality    int    `yaml:"jpeg_quality" json:"jpeg_quality"`
	PNGCompression int    `yaml:"png_compression" json:"png_compression"`
	FlushOnStart   bool   `yaml:"flush_on_start" json:"flush_on_start"`
}

// KeyframeConfig contains the hybrid classifier settings.
type KeyframeConfig struct {
	MinDistanceSeconds  float64          `yaml:"min_distance_seconds" json:"min_distance_seconds"`
	FrameStep           int              `yaml:"frame_step" json:"frame_step"`
	ResizeScale         float64          `yaml:"resize_scale" json:"resize_scale"`
	ForceGrayscale      bool             `yaml:"force_grayscale" json:"force_grayscale"`
	LowMotionThreshold  int              `yaml:"low_motion_threshold" json:"low_motion_threshold"`
	HighMotionThreshold int              `yaml:"high_motion_threshold" json:"high_motion_threshold"`
	MaxKeyframes        int              `yaml:"max_keyframes" json:"max_keyframes"`
	SaveDebugMasks      bool             `yaml:"save_debug_masks" json:"save_debug_masks"`
	ProgressInterval    int              `yaml:"progress_interval" json:"progress_interval"`
	Morphology          MorphologyConfig `yaml:",inline" json:"morphology"`
	MOGColor            SubtractorConfig `yaml:"mog_color" json:"mog_color"`
	MOGTexture          SubtractorConfig `yaml:"mog_texture" json:"mog_texture"`
	LBP                 LBPConfig        `yaml:"lbp" json:"lbp"`
	Adaptive            AdaptiveConfig   `yaml:"adaptive_threshold" json:"adaptive_threshold"`
	Legacy              LegacyAdaptive   `yaml:",inline" json:"-"`
}

// MorphologyConfig controls mask clean-up after background subtraction.
type MorphologyConfig struct {
	Enabled    bool `yaml:"apply_morphology" json:"apply_morphology"`
	KernelSize int  `yaml:"morph_kernel_size" json:"morph_kernel_size"`
}

// SubtractorConfig configures one MOG2 background model.
type SubtractorConfig struct {
	History       int     `yaml:"history" json:"history"`
	VarThreshold  float64 `yaml:"var_threshold" json:"var_threshold"`
	DetectShadows bool    `yaml:"detect_shadows" json:"detect_shadows"`
}

// LBPConfig configures the texture transform ring.
type LBPConfig struct {
	Radius int `yaml:"radius" json:"radius"`
	Points int `yaml:"points" json:"points"`
}

// AdaptiveConfig configures the adaptive threshold estimator.
type AdaptiveConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	WindowSize   int     `yaml:"window_size" json:"window_size"`
	KLow         float64 `yaml:"k_low" json:"k_low"`
	KHigh        float64 `yaml:"k_high" json:"k_high"`
	MinHistory   int     `yaml:"min_history" json:"min_history"`
	SmoothFactor float64 `yaml:"smooth_factor" json:"smooth_factor"`
}

// LegacyAdaptive holds the flattened adaptive_* keys older config files use.
// They are folded into KeyframeConfig.Adaptive at load time and take
// precedence over the nested section.
type LegacyAdaptive struct {
	Enabled      *bool    `yaml:"adaptive_enabled,omitempty"`
	WindowSize   *int     `yaml:"adaptive_window_size,omitempty"`
	KLow         *float64 `yaml:"adaptive_k_low,omitempty"`
	KHigh        *float64 `yaml:"adaptive_k_high,omitempty"`
	MinHistory   *int     `yaml:"adaptive_min_history,omitempty"`
	SmoothFactor *float64 `yaml:"adaptive_smooth_factor,omitempty"`
}

// DebugConfig contains diagnostics output settings.
type DebugConfig struct {
	TracePath string `yaml:"trace_path" json:"trace_path"`
}

// ErrInvalid wraps every out-of-range configuration value.
var ErrInvalid = errors.New("invalid config value")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...)
}

// MissingError reports a required configuration value that is absent.
type MissingError struct {
	Key string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("missing required config key: %q", e.Key)
}

// Default returns the configuration used before any file is applied.
func Default() *Config {
	return &Config{
		Log:       LogConfig{Level: "info", Format: "console"},
		Server:    ServerConfig{Host: "0.0.0.0", Port: 8080},
		Profiling: ProfilingConfig{Addr: ":6060"},
		Catalog:   CatalogConfig{Path: "keyframes.db"},
		Output: OutputConfig{
			Dir:            "hybrid_keyframes",
			MaskDir:        "hybrid_keyframes/masks",
			ImageExtension: "jpg",
			JPEGQuality:    90,
			PNGCompression: 3,
			FlushOnStart:   true,
		},
		Keyframe: KeyframeConfig{
			MinDistanceSeconds:  1.0,
			FrameStep:           1,
			ResizeScale:         1.0,
			ForceGrayscale:      true,
			LowMotionThreshold:  5000,
			HighMotionThreshold: 10000,
			ProgressInterval:    500,
			Morphology:          MorphologyConfig{Enabled: true, KernelSize: 3},
			MOGColor:            SubtractorConfig{History: 500, VarThreshold: 16, DetectShadows: true},
			MOGTexture:          SubtractorConfig{History: 500, VarThreshold: 16, DetectShadows: true},
			LBP:                 LBPConfig{Radius: 1, Points: 8},
			Adaptive: AdaptiveConfig{
				Enabled:    true,
				WindowSize: 300,
				KLow:       1.0,
				KHigh:      3.0,
				MinHistory: 30,
			},
		},
	}
}

// Load reads one or more YAML files over the defaults, later files
// overriding earlier ones key by key, then applies env var overrides.
// Unknown keys are an error.
func Load(paths ...string) (*Config, error) {
	cfg := Default()
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	// flat keys from any file win over the nested section
	cfg.Keyframe.foldLegacy()

	cfg.applyEnvOverrides()
	cfg.setDefaults()

	return cfg, nil
}

func (k *KeyframeConfig) foldLegacy() {
	l := k.Legacy
	if l.Enabled != nil {
		k.Adaptive.Enabled = *l.Enabled
	}
	if l.WindowSize != nil {
		k.Adaptive.WindowSize = *l.WindowSize
	}
	if l.KLow != nil {
		k.Adaptive.KLow = *l.KLow
	}
	if l.KHigh != nil {
		k.Adaptive.KHigh = *l.KHigh
	}
	if l.MinHistory != nil {
		k.Adaptive.MinHistory = *l.MinHistory
	}
	if l.SmoothFactor != nil {
		k.Adaptive.SmoothFactor = *l.SmoothFactor
	}
	k.Legacy = LegacyAdaptive{}
}

func (c *Config) applyEnvOverrides() {
	if level := os.Getenv("KEYFRAME_SENTRY_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if host := os.Getenv("KEYFRAME_SENTRY_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("KEYFRAME_SENTRY_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if video := os.Getenv("KEYFRAME_SENTRY_VIDEO_PATH"); video != "" {
		c.VideoPath = video
	}
	if dir := os.Getenv("KEYFRAME_SENTRY_OUTPUT_DIR"); dir != "" {
		c.Output.Dir = dir
	}
	if maxKF := os.Getenv("KEYFRAME_SENTRY_MAX_KEYFRAMES"); maxKF != "" {
		if m, err := strconv.Atoi(maxKF); err == nil {
			c.Keyframe.MaxKeyframes = m
		}
	}
	if path := os.Getenv("KEYFRAME_SENTRY_CATALOG_PATH"); path != "" {
		c.Catalog.Path = path
	}
	if trace := os.Getenv("KEYFRAME_SENTRY_TRACE_PATH"); trace != "" {
		c.Debug.TracePath = trace
	}
}

func (c *Config) setDefaults() {
	if c.Keyframe.FrameStep <= 0 {
		c.Keyframe.FrameStep = 1
	}
	if c.Keyframe.ResizeScale <= 0 {
		c.Keyframe.ResizeScale = 1.0
	}
	if c.Keyframe.ProgressInterval <= 0 {
		c.Keyframe.ProgressInterval = 500
	}
	if c.Output.JPEGQuality <= 0 {
		c.Output.JPEGQuality = 90
	}
	if c.Server.Port <= 0 {
		c.Server.Port = 8080
	}
	c.Output.ImageExtension = strings.TrimPrefix(strings.ToLower(c.Output.ImageExtension), ".")
}

// Validate checks the values a run cannot start without. Missing values are
// reported as *MissingError; out-of-range values as plain errors.
func (s Snapshot) Validate(requireVideo bool) error {
	var errs []error
	if requireVideo && s.VideoPath == "" {
		errs = append(errs, &MissingError{Key: "video_path"})
	}
	if s.Output.Dir == "" {
		errs = append(errs, &MissingError{Key: "output.dir"})
	}
	if s.Output.ImageExtension == "" {
		errs = append(errs, &MissingError{Key: "output.image_extension"})
	}
	if s.Keyframe.SaveDebugMasks && s.Output.MaskDir == "" {
		errs = append(errs, &MissingError{Key: "output.mask_dir"})
	}

	k := s.Keyframe
	if k.MinDistanceSeconds < 0 {
		errs = append(errs, invalid("keyframe.min_distance_seconds must be >= 0, got %v", k.MinDistanceSeconds))
	}
	if k.MaxKeyframes < 0 {
		errs = append(errs, invalid("keyframe.max_keyframes must be >= 0, got %d", k.MaxKeyframes))
	}
	if k.LBP.Radius < 1 {
		errs = append(errs, invalid("keyframe.lbp.radius must be >= 1, got %d", k.LBP.Radius))
	}
	if k.LBP.Points < 1 || k.LBP.Points > 32 {
		errs = append(errs, invalid("keyframe.lbp.points must be in [1, 32], got %d", k.LBP.Points))
	}
	if k.Adaptive.SmoothFactor < 0 || k.Adaptive.SmoothFactor > 1 {
		errs = append(errs, invalid("keyframe.adaptive_threshold.smooth_factor must be in [0, 1], got %v", k.Adaptive.SmoothFactor))
	}
	for _, sub := range []struct {
		name string
		cfg  SubtractorConfig
	}{{"mog_color", k.MOGColor}, {"mog_texture", k.MOGTexture}} {
		if sub.cfg.History <= 0 {
			errs = append(errs, invalid("keyframe.%s.history must be > 0, got %d", sub.name, sub.cfg.History))
		}
		if sub.cfg.VarThreshold <= 0 {
			errs = append(errs, invalid("keyframe.%s.var_threshold must be > 0, got %v", sub.name, sub.cfg.VarThreshold))
		}
	}
	switch s.Output.ImageExtension {
	case "", "jpg", "jpeg", "png", "bmp", "webp", "tif", "tiff":
	default:
		errs = append(errs, invalid("output.image_extension %q is not supported", s.Output.ImageExtension))
	}

	return errors.Join(errs...)
}

// Update atomically updates the configuration
func (c *Config) Update(updater func(*Config)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	updater(c)
	c.setDefaults()
}

// Get safely retrieves a snapshot of the config without mutex
func (c *Config) Get() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		Log:       c.Log,
		Server:    c.Server,
		Profiling: c.Profiling,
		Catalog:   c.Catalog,
		VideoPath: c.VideoPath,
		Output:    c.Output,
		Keyframe:  c.Keyframe,
		Debug:     c.Debug,
	}
}

// Save writes the current configuration to a file
func (c *Config) Save(path string) error {
	snap := c.Get()

	data, err := yaml.Marshal(snap)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}
