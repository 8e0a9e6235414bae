// Package config provides configuration management for spacesaver using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort      = 8080
	defaultServerTimeout   = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultCRF             = 22
	defaultPreset          = "slow"
	defaultProbeTimeout    = 30 * time.Second
	defaultPollInterval    = 5 * time.Second
	maxCRF                 = 51
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Library  LibraryConfig  `mapstructure:"library"`
	Encoder  EncoderConfig  `mapstructure:"encoder"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path     string `mapstructure:"path"`      // SQLite file path (empty = {library.data_dir}/state.db)
	LogLevel string `mapstructure:"log_level"` // silent, error, warn, info
}

// LibraryConfig holds media library configuration.
type LibraryConfig struct {
	SourceDirs []string `mapstructure:"source_dirs"` // Directories scanned for media files
	DataDir    string   `mapstructure:"data_dir"`    // State and scratch storage
	WorkDir    string   `mapstructure:"work_dir"`    // Encode workfile directory (empty = {data_dir}/work)
}

// EncoderConfig holds encode pipeline configuration.
type EncoderConfig struct {
	CRF          int           `mapstructure:"crf"`           // x265 constant rate factor (0-51)
	ResCap       int           `mapstructure:"res_cap"`       // Max output height in pixels (0 = no cap)
	Preset       string        `mapstructure:"preset"`        // x265 preset
	FFmpegPath   string        `mapstructure:"ffmpeg_path"`   // Path to ffmpeg binary
	FFprobePath  string        `mapstructure:"ffprobe_path"`  // Path to ffprobe binary
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"` // Timeout for ffprobe invocations
	PollInterval time.Duration `mapstructure:"poll_interval"` // Worker idle poll interval
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with SPACESAVER_ and use underscores for nesting.
// Example: SPACESAVER_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	SetDefaults(v)

	// Config file settings
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/spacesaver")
		v.AddConfigPath("$HOME/.spacesaver")
	}

	// Environment variable settings
	v.SetEnvPrefix("SPACESAVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults are in place.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)

	// Database defaults
	v.SetDefault("database.path", "")
	v.SetDefault("database.log_level", "warn")

	// Library defaults
	v.SetDefault("library.source_dirs", []string{})
	v.SetDefault("library.data_dir", "./data")
	v.SetDefault("library.work_dir", "")

	// Encoder defaults
	v.SetDefault("encoder.crf", defaultCRF)
	v.SetDefault("encoder.res_cap", 0)
	v.SetDefault("encoder.preset", defaultPreset)
	v.SetDefault("encoder.ffmpeg_path", "ffmpeg")
	v.SetDefault("encoder.ffprobe_path", "ffprobe")
	v.SetDefault("encoder.probe_timeout", defaultProbeTimeout)
	v.SetDefault("encoder.poll_interval", defaultPollInterval)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Server validation
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	// Library validation
	if len(c.Library.SourceDirs) == 0 {
		return fmt.Errorf("library.source_dirs is required")
	}
	if c.Library.DataDir == "" {
		return fmt.Errorf("library.data_dir is required")
	}

	// Encoder validation
	if c.Encoder.CRF < 0 || c.Encoder.CRF > maxCRF {
		return fmt.Errorf("encoder.crf must be between 0 and %d", maxCRF)
	}
	if c.Encoder.ResCap < 0 {
		return fmt.Errorf("encoder.res_cap must not be negative")
	}
	if c.Encoder.PollInterval <= 0 {
		return fmt.Errorf("encoder.poll_interval must be positive")
	}
	if c.Encoder.ProbeTimeout <= 0 {
		return fmt.Errorf("encoder.probe_timeout must be positive")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabasePath returns the SQLite file path, defaulting under the data dir.
func (c *Config) DatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(c.Library.DataDir, "state.db")
}

// WorkPath returns the encode workfile directory, defaulting under the data dir.
func (c *LibraryConfig) WorkPath() string {
	if c.WorkDir != "" {
		return c.WorkDir
	}
	return filepath.Join(c.DataDir, "work")
}
