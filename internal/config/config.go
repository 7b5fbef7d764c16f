// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Default endpoints for the external collaborators. The vision endpoint is a
// local OpenAI-compatible server (LM Studio, llama.cpp, vLLM and friends all
// speak this dialect).
const (
	DefaultDeviceAddress = "127.0.0.1:5555"
	DefaultModelURL      = "http://127.0.0.1:1234/v1"
	DefaultModelName     = "qwen/qwen3-vl-8b"
)

// MaxWait bounds the post-action wait; anything above is clamped, not an error.
const MaxWait = 60 * time.Second

// Config holds the entire application configuration. It is constructed once
// per invocation and passed down explicitly; no component reads process
// globals after this point.
type Config struct {
	Logger LoggerConfig `mapstructure:"logger" yaml:"logger"`
	Device DeviceConfig `mapstructure:"device" yaml:"device"`
	Vision VisionConfig `mapstructure:"vision" yaml:"vision"`
	Run    RunConfig    `mapstructure:"run" yaml:"run"`
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

// DeviceConfig addresses the external debugging bridge.
type DeviceConfig struct {
	// ADBPath is the bridge binary; a bare name resolves through PATH.
	ADBPath string `mapstructure:"adb_path" yaml:"adb_path"`
	// Address is the host:port ADB target.
	Address string `mapstructure:"address" yaml:"address"`
	// CommandTimeout bounds a single bridge command.
	CommandTimeout time.Duration `mapstructure:"command_timeout" yaml:"command_timeout"`
	// RateLimit caps bridge dispatches per second; Burst is the limiter burst.
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	Burst     int     `mapstructure:"burst" yaml:"burst"`
}

// VisionConfig addresses the local vision model endpoint.
type VisionConfig struct {
	BaseURL     string  `mapstructure:"base_url" yaml:"base_url"`
	Model       string  `mapstructure:"model" yaml:"model"`
	MaxTokens   int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature float64 `mapstructure:"temperature" yaml:"temperature"`
}

// RunConfig holds the per-invocation knobs, mostly populated from CLI flags.
type RunConfig struct {
	// TotalTimeout is the overall deadline shared by action, wait and vision call.
	TotalTimeout time.Duration `mapstructure:"total_timeout" yaml:"total_timeout"`
	// AnalysisFloor is the minimum allowance for the vision call.
	AnalysisFloor time.Duration `mapstructure:"analysis_floor" yaml:"analysis_floor"`
	// Wait is the post-action pause before observing.
	Wait time.Duration `mapstructure:"wait" yaml:"wait"`
	// AutoView captures and describes the screen after mutating actions.
	AutoView bool `mapstructure:"auto_view" yaml:"auto_view"`
	// JSON switches stdout to machine-readable envelopes.
	JSON bool `mapstructure:"json" yaml:"json"`
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "droidpilot")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)

	// -- Device --
	v.SetDefault("device.adb_path", "adb")
	v.SetDefault("device.address", DefaultDeviceAddress)
	v.SetDefault("device.command_timeout", "30s")
	v.SetDefault("device.rate_limit", 10.0)
	v.SetDefault("device.burst", 5)

	// -- Vision --
	v.SetDefault("vision.base_url", DefaultModelURL)
	v.SetDefault("vision.model", DefaultModelName)
	v.SetDefault("vision.max_tokens", 800)
	v.SetDefault("vision.temperature", 0.2)

	// -- Run --
	v.SetDefault("run.total_timeout", "130s")
	v.SetDefault("run.analysis_floor", "10s")
	v.SetDefault("run.wait", "1500ms")
	v.SetDefault("run.auto_view", true)
	v.SetDefault("run.json", false)
}

// BindEnvOverrides wires the documented plain environment variables on top of
// the automatic DROIDPILOT_* prefix. DEFAULT_TIMEOUT and DEFAULT_WAIT are
// plain seconds, matching the historical tooling, and are normalized by
// NewConfigFromViper.
func BindEnvOverrides(v *viper.Viper) {
	v.BindEnv("vision.model", "DEFAULT_MODEL")
	v.BindEnv("run.total_timeout", "DEFAULT_TIMEOUT")
	v.BindEnv("run.wait", "DEFAULT_WAIT")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(secondsDecodeHook())); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.Run.Wait = ClampWait(cfg.Run.Wait)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := NewConfigFromViper(v)
	if err != nil {
		// Cannot happen with pure defaults.
		panic(fmt.Sprintf("failed to build default config: %v", err))
	}
	return cfg
}

// ClampWait bounds a wait to [0, MaxWait].
func ClampWait(w time.Duration) time.Duration {
	if w < 0 {
		return 0
	}
	if w > MaxWait {
		return MaxWait
	}
	return w
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Device.ADBPath == "" {
		return fmt.Errorf("device.adb_path must not be empty")
	}
	if c.Device.Address == "" {
		return fmt.Errorf("device.address must not be empty")
	}
	if c.Device.CommandTimeout <= 0 {
		return fmt.Errorf("device.command_timeout must be a positive duration")
	}
	if c.Device.RateLimit <= 0 {
		return fmt.Errorf("device.rate_limit must be positive")
	}
	if c.Vision.BaseURL == "" {
		return fmt.Errorf("vision.base_url must not be empty")
	}
	if c.Vision.Model == "" {
		return fmt.Errorf("vision.model must not be empty")
	}
	if c.Vision.MaxTokens <= 0 {
		return fmt.Errorf("vision.max_tokens must be positive")
	}
	if c.Run.TotalTimeout <= 0 {
		return fmt.Errorf("run.total_timeout must be a positive duration")
	}
	if c.Run.AnalysisFloor <= 0 {
		return fmt.Errorf("run.analysis_floor must be a positive duration")
	}
	if c.Run.AnalysisFloor > c.Run.TotalTimeout {
		return fmt.Errorf("run.analysis_floor must not exceed run.total_timeout")
	}
	return nil
}
