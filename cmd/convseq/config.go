package main

import (
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/convseq/convseq/internal/logger"
)

// Config is the user configuration file (~/.config/convseq/config.yaml).
// Pointer fields distinguish "not set" from zero values.
type Config struct {
	ModelPath string `yaml:"model_path"`

	Temperature *float64 `yaml:"temperature"`
	TopK        *int64   `yaml:"top_k"`
	MaxLen      *int64   `yaml:"max_len"`
	Seed        *int64   `yaml:"seed"`

	ServerAddress string `yaml:"server_address"`
	LogLevel      string `yaml:"log_level"`
	LogFormat     string `yaml:"log_format"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "convseq", "config.yaml")
}

// loadUserConfig reads the config file if present. A missing file is not an
// error; a malformed one is.
func loadUserConfig() (Config, error) {
	var cfg Config
	path := configPath()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// newLogger builds the logger selected by the logging flags and config.
func newLogger(cfg Config) logger.Logger {
	level := logLevel
	if level == "" && cfg.LogLevel != "" {
		level = cfg.LogLevel
	}
	format := logFormat
	if format == "" && cfg.LogFormat != "" {
		format = cfg.LogFormat
	}
	var w io.Writer = os.Stderr
	if format == "json" {
		return logger.JSON(w, logger.ParseLevel(level))
	}
	return logger.Text(w, logger.ParseLevel(level))
}
