// Package config loads tpxa settings.
//
// Values are resolved in this order, highest first:
//  1. command-line flags
//  2. TPXA_* environment variables
//  3. the YAML config file ($TPXA_CONFIG or ./tpxa.yaml)
//  4. defaults
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Environment variables.
const (
	EnvConfig    = "TPXA_CONFIG"
	EnvDB        = "TPXA_DB"
	EnvListen    = "TPXA_LISTEN"
	EnvLogLevel  = "TPXA_LOG_LEVEL"
	EnvLogFormat = "TPXA_LOG_FORMAT"
)

// DefaultPath is the config file read when TPXA_CONFIG is unset.
const DefaultPath = "tpxa.yaml"

// Config holds all tpxa settings.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Export   ExportConfig   `yaml:"export"`
}

// DatabaseConfig locates the blog store.
type DatabaseConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// ServerConfig configures `tpxa serve`.
type ServerConfig struct {
	Listen string `yaml:"listen" validate:"required,hostname_port"`
	// QueueSize bounds the number of pending imports.
	QueueSize int `yaml:"queue_size" validate:"gte=1"`
	// MaxUploadMB bounds uploaded documents.
	MaxUploadMB int64 `yaml:"max_upload_mb" validate:"gte=1"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"oneof=json text"`
}

// ExportConfig holds defaults for exports.
type ExportConfig struct {
	TagsToCategories         bool     `yaml:"tags_to_categories"`
	DescriptionsToCategories bool     `yaml:"with_descriptions_to_categories"`
	KeepAsTags               []string `yaml:"keep_as_tags"`
}

// Overrides are values given on the command line. Empty fields are unset.
type Overrides struct {
	DB        string
	Listen    string
	LogLevel  string
	LogFormat string
}

// Load reads the config file if there is one, then applies environment
// variables and overrides.
func Load(o Overrides) (*Config, string, error) {
	path := os.Getenv(EnvConfig)
	if path == "" {
		if _, err := os.Stat(DefaultPath); err == nil {
			path = DefaultPath
		}
	}

	cfg := DefaultConfig()
	if path != "" {
		var err error
		cfg, err = LoadFromPath(path)
		if err != nil {
			return nil, path, err
		}
	}

	cfg.Database.Path = getConfigValue(o.DB, EnvDB, cfg.Database.Path)
	cfg.Server.Listen = getConfigValue(o.Listen, EnvListen, cfg.Server.Listen)
	cfg.Log.Level = getConfigValue(o.LogLevel, EnvLogLevel, cfg.Log.Level)
	cfg.Log.Format = getConfigValue(o.LogFormat, EnvLogFormat, cfg.Log.Format)

	if err := cfg.Validate(); err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// LoadFromPath loads config from a specific path.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// DefaultConfig returns the settings used without a config file.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Database.Path == "" {
		c.Database.Path = "./blog.db"
	}
	if c.Server.Listen == "" {
		c.Server.Listen = "127.0.0.1:8080"
	}
	if c.Server.QueueSize == 0 {
		c.Server.QueueSize = 16
	}
	if c.Server.MaxUploadMB == 0 {
		c.Server.MaxUploadMB = 64
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

var validate = validator.New()

// Validate checks the resolved settings.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid config: %w", err)
	}
	fe := verrs[0]
	return fmt.Errorf("invalid config: %s %q fails %s", fe.Namespace(), fmt.Sprint(fe.Value()), fe.Tag())
}

// getConfigValue returns the flag value, else the environment value, else
// the fallback.
func getConfigValue(flagValue, envKey, fallback string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return fallback
}
