// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// TemplatesEnvVar overrides the template root when set.
const TemplatesEnvVar = "VISION_ASSISTANT_TEMPLATES"

// Config holds the entire application configuration.
type Config struct {
	Logger       LoggerConfig       `mapstructure:"logger" yaml:"logger"`
	Screen       ScreenConfig       `mapstructure:"screen" yaml:"screen"`
	Aligner      AlignerConfig      `mapstructure:"aligner" yaml:"aligner"`
	Resolver     ResolverConfig     `mapstructure:"resolver" yaml:"resolver"`
	Input        InputConfig        `mapstructure:"input" yaml:"input"`
	CheckLoading CheckLoadingConfig `mapstructure:"check_loading" yaml:"check_loading"`
	Templates    TemplatesConfig    `mapstructure:"templates" yaml:"templates"`
	Transport    TransportConfig    `mapstructure:"transport" yaml:"transport"`
	Queue        QueueConfig        `mapstructure:"queue" yaml:"queue"`
	Debug        DebugConfig        `mapstructure:"debug" yaml:"debug"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// ScreenConfig optionally pins the reported OS screen size. Zero values mean
// the size is queried from the display at startup.
type ScreenConfig struct {
	Width  int `mapstructure:"width" yaml:"width"`
	Height int `mapstructure:"height" yaml:"height"`
}

// AlignerConfig tunes template matching.
type AlignerConfig struct {
	// Threshold is the minimum normalized cross-correlation peak for a match.
	Threshold  float64 `mapstructure:"threshold" yaml:"threshold"`
	SweepMin   float64 `mapstructure:"sweep_min" yaml:"sweep_min"`
	SweepMax   float64 `mapstructure:"sweep_max" yaml:"sweep_max"`
	SweepCount int     `mapstructure:"sweep_count" yaml:"sweep_count"`
	// Refine hill-climbs the sweep grid after the first acceptable scale.
	Refine bool `mapstructure:"refine" yaml:"refine"`
	// PyramidMinPixels is the target size above which a coarse-to-fine search is used.
	PyramidMinPixels   int `mapstructure:"pyramid_min_pixels" yaml:"pyramid_min_pixels"`
	PyramidMinTemplate int `mapstructure:"pyramid_min_template" yaml:"pyramid_min_template"`
	PyramidCandidates  int `mapstructure:"pyramid_candidates" yaml:"pyramid_candidates"`
	Workers            int `mapstructure:"workers" yaml:"workers"`
}

// ResolverConfig tunes the page scroll pass.
type ResolverConfig struct {
	ScrollStep          int           `mapstructure:"scroll_step" yaml:"scroll_step"`
	BackToTopClicks     int           `mapstructure:"back_to_top_clicks" yaml:"back_to_top_clicks"`
	SimilarityThreshold float64       `mapstructure:"similarity_threshold" yaml:"similarity_threshold"`
	SettleDelay         time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	PageScaleCount      int           `mapstructure:"page_scale_count" yaml:"page_scale_count"`
	MaxFrames           int           `mapstructure:"max_frames" yaml:"max_frames"`
}

// CheckLoadingConfig controls how long a page is given to show its loaded marker.
type CheckLoadingConfig struct {
	Attempts     int           `mapstructure:"attempts" yaml:"attempts"`
	InitialDelay time.Duration `mapstructure:"initial_delay" yaml:"initial_delay"`
	RetryDelay   time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
}

// TemplatesConfig locates the per-EMR template trees.
type TemplatesConfig struct {
	Root       string   `mapstructure:"root" yaml:"root"`
	DefaultEMR string   `mapstructure:"default_emr" yaml:"default_emr"`
	Tasks      []string `mapstructure:"tasks" yaml:"tasks"`
}

// TransportConfig holds the websocket relay settings.
type TransportConfig struct {
	ServerURL      string        `mapstructure:"server_url" yaml:"server_url"`
	Path           string        `mapstructure:"path" yaml:"path"`
	InsecureTLS    bool          `mapstructure:"insecure_tls" yaml:"insecure_tls"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay" yaml:"reconnect_delay"`
	MaxReconnect   time.Duration `mapstructure:"max_reconnect" yaml:"max_reconnect"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

// QueueConfig sizes the incoming task queue.
type QueueConfig struct {
	Size    int `mapstructure:"size" yaml:"size"`
	Workers int `mapstructure:"workers" yaml:"workers"`
}

// DebugConfig enables on-disk artifacts for troubleshooting.
type DebugConfig struct {
	FramesDir string `mapstructure:"frames_dir" yaml:"frames_dir"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "vision-assistant")
	v.SetDefault("logger.log_file", "vision-assistant.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Aligner --
	v.SetDefault("aligner.threshold", 0.8)
	v.SetDefault("aligner.sweep_min", 0.5)
	v.SetDefault("aligner.sweep_max", 1.5)
	v.SetDefault("aligner.sweep_count", 21)
	v.SetDefault("aligner.refine", true)
	v.SetDefault("aligner.pyramid_min_pixels", 200_000)
	v.SetDefault("aligner.pyramid_min_template", 24)
	v.SetDefault("aligner.pyramid_candidates", 8)
	v.SetDefault("aligner.workers", 4)

	// -- Resolver --
	v.SetDefault("resolver.scroll_step", 5)
	v.SetDefault("resolver.back_to_top_clicks", 3500)
	v.SetDefault("resolver.similarity_threshold", 0.95)
	v.SetDefault("resolver.settle_delay", "500ms")
	v.SetDefault("resolver.page_scale_count", 30)
	v.SetDefault("resolver.max_frames", 200)

	// -- Input --
	setInputDefaults(v)

	// -- Check Loading --
	v.SetDefault("check_loading.attempts", 3)
	v.SetDefault("check_loading.initial_delay", "2s")
	v.SetDefault("check_loading.retry_delay", "3s")

	// -- Templates --
	v.SetDefault("templates.default_emr", "office_ally")
	v.SetDefault("templates.tasks", []string{"add_new_patient"})

	// -- Transport --
	v.SetDefault("transport.server_url", "ws://localhost:8000")
	v.SetDefault("transport.path", "/connect-tool")
	v.SetDefault("transport.insecure_tls", false)
	v.SetDefault("transport.reconnect_delay", "5s")
	v.SetDefault("transport.max_reconnect", "1m")
	v.SetDefault("transport.write_timeout", "10s")

	// -- Queue --
	v.SetDefault("queue.size", 64)
	v.SetDefault("queue.workers", 1)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	v.BindEnv("templates.root", TemplatesEnvVar)

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.Templates.Root == "" {
		cfg.Templates.Root = os.Getenv(TemplatesEnvVar)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Screen.Width < 0 || c.Screen.Height < 0 {
		return fmt.Errorf("screen dimensions must not be negative")
	}
	if (c.Screen.Width == 0) != (c.Screen.Height == 0) {
		return fmt.Errorf("screen.width and screen.height must be set together")
	}
	if err := c.Aligner.Validate(); err != nil {
		return fmt.Errorf("aligner configuration invalid: %w", err)
	}
	if err := c.Resolver.Validate(); err != nil {
		return fmt.Errorf("resolver configuration invalid: %w", err)
	}
	if err := c.Input.Validate(); err != nil {
		return fmt.Errorf("input configuration invalid: %w", err)
	}
	if c.CheckLoading.Attempts <= 0 {
		return fmt.Errorf("check_loading.attempts must be a positive integer")
	}
	if c.Queue.Size <= 0 {
		return fmt.Errorf("queue.size must be a positive integer")
	}
	if c.Queue.Workers <= 0 {
		return fmt.Errorf("queue.workers must be a positive integer")
	}
	return nil
}

// Validate checks the AlignerConfig settings.
func (a *AlignerConfig) Validate() error {
	if a.Threshold <= 0 || a.Threshold > 1 {
		return fmt.Errorf("threshold must be in (0, 1]")
	}
	if a.SweepMin <= 0 || a.SweepMax < a.SweepMin {
		return fmt.Errorf("sweep range [%g, %g] is invalid", a.SweepMin, a.SweepMax)
	}
	if a.SweepCount < 2 {
		return fmt.Errorf("sweep_count must be at least 2")
	}
	return nil
}

// Validate checks the ResolverConfig settings.
func (r *ResolverConfig) Validate() error {
	if r.ScrollStep <= 0 {
		return fmt.Errorf("scroll_step must be a positive integer")
	}
	if r.BackToTopClicks <= 0 {
		return fmt.Errorf("back_to_top_clicks must be a positive integer")
	}
	if r.SimilarityThreshold <= 0 || r.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be in (0, 1]")
	}
	if r.MaxFrames < 2 {
		return fmt.Errorf("max_frames must be at least 2")
	}
	return nil
}
