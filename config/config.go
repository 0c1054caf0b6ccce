// Package config defines process-wide RKE configuration: the filesystem
// root fragments/metadata/coins/keys are stored under, and the coin_id a
// node's encryption coins must carry.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// Config is the configuration an RKE node needs at startup.
type Config struct {
	CWD            string `json:"cwd"`
	CoinID         uint16 `json:"coin_id"`
	LogLevel       string `json:"log_level"`
	RecordsPerPage int    `json:"records_per_page"`
}

var allowedLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

// DefaultCWD returns the default RKE working directory, ~/.rke, falling
// back to a relative path if the home directory can't be determined.
func DefaultCWD() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".rke"
	}
	return filepath.Join(home, ".rke")
}

// DefaultConfig returns sane defaults for local development.
func DefaultConfig() Config {
	return Config{
		CWD:            DefaultCWD(),
		CoinID:         1,
		LogLevel:       "info",
		RecordsPerPage: 1_000_000,
	}
}

// Validate checks cfg for internal consistency.
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.CWD) == "" {
		return errors.New("cwd is required")
	}
	logLevel := strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if _, ok := allowedLogLevels[logLevel]; !ok {
		return errors.New("invalid log_level " + cfg.LogLevel)
	}
	if cfg.RecordsPerPage <= 0 {
		return errors.New("records_per_page must be > 0")
	}
	return nil
}
