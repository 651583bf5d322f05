// Package config provides configuration loading and structs for the Tansa server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug   bool          `yaml:"debug"`
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Search  SearchConfig  `yaml:"search"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds the data directory the engine owns.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

// SearchConfig holds query settings.
type SearchConfig struct {
	DefaultTopK int `yaml:"default_top_k"`
}

// Load builds the configuration: YAML file (when path is non-empty),
// then environment overrides, then defaults for whatever is still
// unset. A .env file in the working directory is honored.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	configDir := ""
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		configDir = filepath.Dir(path)
	}

	applyEnv(&cfg)
	ApplyDefaults(&cfg)
	cfg.Storage.DataDir = expandPath(cfg.Storage.DataDir, configDir)
	return &cfg, nil
}

// applyEnv overlays TANSA_* environment variables. Env wins over the
// config file; command-line flags win over both.
func applyEnv(cfg *Config) {
	cfg.Storage.DataDir = getEnv("TANSA_DATA_DIR", cfg.Storage.DataDir)
	cfg.Server.Host = getEnv("TANSA_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvAsInt("TANSA_PORT", cfg.Server.Port)
	cfg.Search.DefaultTopK = getEnvAsInt("TANSA_TOP_K", cfg.Search.DefaultTopK)
	cfg.Debug = getEnvAsBool("TANSA_DEBUG", cfg.Debug)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// expandPath converts a path to absolute. Paths starting with "./" are
// relative to configDir; other relative paths are relative to the home
// directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
