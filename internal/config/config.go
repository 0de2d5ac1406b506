package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// ServerURL is the base URL of the Makerlink marketplace API.
	ServerURL string `yaml:"serverUrl"`
	// SocketPath is the Socket.IO endpoint path on the server.
	SocketPath string `yaml:"socketPath"`
	// AccessToken is the bearer token used for the REST API and the socket
	// transport. Authentication itself is handled elsewhere; the engine only
	// carries the token.
	AccessToken string `yaml:"accessToken"`
	// Role is the local participant role ("maker" or "creator").
	Role string `yaml:"role"`

	// HistoryPageSize is the page size used when fetching conversation history.
	HistoryPageSize int `yaml:"historyPageSize"`

	// LogLevel is the logger threshold (trace|debug|info|warn|error).
	LogLevel string `yaml:"logLevel"`
	// Debug enables verbose logging regardless of LogLevel.
	Debug bool `yaml:"debug"`
}

const (
	defaultServerURL       = "https://api.makerlink.app"
	defaultSocketPath      = "/v1/chat"
	defaultHistoryPageSize = 50
)

// Load loads configuration from an optional YAML file, a local .env file, and
// the environment, in increasing order of precedence.
func Load() (*Config, error) {
	// Best-effort: a missing .env is not an error.
	_ = godotenv.Load()

	cfg := &Config{
		ServerURL:       defaultServerURL,
		SocketPath:      defaultSocketPath,
		Role:            "creator",
		HistoryPageSize: defaultHistoryPageSize,
		LogLevel:        "info",
	}

	path := os.Getenv("MAKERLINK_CONFIG")
	if path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, ".makerlink", "config.yaml")
		}
	}
	if path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if cfg.Role != "maker" && cfg.Role != "creator" {
		return nil, fmt.Errorf("invalid role %q (want maker or creator)", cfg.Role)
	}
	if cfg.HistoryPageSize <= 0 {
		cfg.HistoryPageSize = defaultHistoryPageSize
	}
	return cfg, nil
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("MAKERLINK_SERVER_URL"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("MAKERLINK_SOCKET_PATH"); v != "" {
		cfg.SocketPath = v
	}
	if v := os.Getenv("MAKERLINK_ACCESS_TOKEN"); v != "" {
		cfg.AccessToken = v
	}
	if v := os.Getenv("MAKERLINK_ROLE"); v != "" {
		cfg.Role = v
	}
	if v := os.Getenv("MAKERLINK_HISTORY_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HistoryPageSize = n
		}
	}
	if v := os.Getenv("MAKERLINK_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("MAKERLINK_DEBUG"); v != "" {
		cfg.Debug = v == "1" || v == "true"
	}
}
