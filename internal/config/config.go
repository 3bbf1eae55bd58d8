// Package config loads the arcade.jsonc configuration file and the
// ARCADE_* environment overlay. A missing config file is not an error;
// every setting has a usable default.
package config

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config is the full configuration for the server runtime.
type Config struct {
	Server        ServerSection        `json:"server"`
	Notifications NotificationsSection `json:"notifications"`
	Sessions      SessionsSection      `json:"sessions"`
	Requests      RequestsSection      `json:"requests"`
	Events        EventsSection        `json:"events"`
	Tools         ToolsSection         `json:"tools"`
	Secrets       map[string]string    `json:"secrets"`
	Auth          AuthSection          `json:"auth"`
	Audit         AuditSection         `json:"audit"`
	Logging       LoggingSection       `json:"logging"`

	// Env is the process environment overlay, filled by Load.
	Env Env `json:"-"`
}

// ServerSection configures the HTTP listener and server identity.
type ServerSection struct {
	Host             string `json:"host"`
	Port             int    `json:"port"`
	Name             string `json:"name"`
	Title            string `json:"title"`
	Version          string `json:"version"`
	Instructions     string `json:"instructions"`
	MaskErrorDetails bool   `json:"mask_error_details"`
}

// NotificationsSection configures outbound notification behavior.
type NotificationsSection struct {
	RateLimitPerMinute int `json:"rate_limit_per_minute"`
	DebounceMs         int `json:"debounce_ms"`
}

// SessionsSection configures session queues and lifecycle.
type SessionsSection struct {
	MaxQueue               int `json:"max_queue"`
	TimeoutSeconds         int `json:"timeout_seconds"`
	CleanupIntervalSeconds int `json:"cleanup_interval_seconds"`
	MaxSessions            int `json:"max_sessions"`
}

// RequestsSection configures server-to-client requests.
type RequestsSection struct {
	TimeoutSeconds int `json:"timeout_seconds"`
}

// EventsSection configures the SSE resumability event store.
type EventsSection struct {
	MaxPerStream int `json:"max_per_stream"`
}

// ToolsSection configures tool execution defaults.
type ToolsSection struct {
	DefaultUserID string            `json:"default_user_id"`
	Metadata      map[string]string `json:"metadata"`
}

// AuthSection configures authorization providers for local development.
type AuthSection struct {
	Disabled  bool                      `json:"disabled"`
	Providers map[string]ProviderConfig `json:"providers"`
}

// ProviderConfig is one mock OAuth provider for local development.
type ProviderConfig struct {
	MockTokens map[string]string `json:"mock_tokens"`
}

// AuditSection configures the tool-call audit trail.
type AuditSection struct {
	Enabled           bool   `json:"enabled"`
	DBPath            string `json:"db_path"`
	RetentionDays     int    `json:"retention_days"`
	RetentionSchedule string `json:"retention_schedule"`
}

// LoggingSection configures the process logger. JSON switches the
// console and file sinks from plain text to structured JSON records.
type LoggingSection struct {
	Dir   string `json:"dir"`
	Debug bool   `json:"debug"`
	JSON  bool   `json:"json"`
}

// Env is the ARCADE_* environment overlay read at startup.
type Env struct {
	APIKey       string
	APIURL       string
	UserID       string
	UserEmail    string
	WorkerSecret string
}

// envFromProcess snapshots the ARCADE_* variables.
func envFromProcess() Env {
	return Env{
		APIKey:       os.Getenv("ARCADE_API_KEY"),
		APIURL:       os.Getenv("ARCADE_API_URL"),
		UserID:       os.Getenv("ARCADE_USER_ID"),
		UserEmail:    os.Getenv("ARCADE_USER_EMAIL"),
		WorkerSecret: os.Getenv("ARCADE_WORKER_SECRET"),
	}
}

// FindConfigPath returns the path to arcade.jsonc using precedence:
// 1. configDir + /arcade.jsonc (if configDir specified)
// 2. ./config/arcade.jsonc (project-local)
// 3. ~/.arcade/config/arcade.jsonc (user global)
func FindConfigPath(configDir string) (string, error) {
	if configDir != "" {
		path := filepath.Join(configDir, "arcade.jsonc")
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("arcade.jsonc not found in %s", configDir)
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return path, nil
		}
		return abs, nil
	}

	candidates := []string{
		filepath.Join("config", "arcade.jsonc"),
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(homeDir, ".arcade", "config", "arcade.jsonc"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			abs, err := filepath.Abs(path)
			if err != nil {
				return path, nil
			}
			return abs, nil
		}
	}

	return "", fmt.Errorf("arcade.jsonc not found; tried: %v", candidates)
}

// Load reads arcade.jsonc from configDir (per FindConfigPath precedence),
// applies defaults and the environment overlay. A missing file yields the
// defaults alone.
func Load(configDir string) (*Config, error) {
	cfg := &Config{}

	path, err := FindConfigPath(configDir)
	if err == nil {
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil, fmt.Errorf("reading %s: %w", path, readErr)
		}
		if err := json.Unmarshal(stripJSONComments(data), cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	} else if configDir != "" {
		// An explicit --config dir that lacks the file is a hard error;
		// the implicit search locations are optional.
		return nil, err
	}

	applyDefaults(cfg)
	cfg.Env = envFromProcess()
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 7777
	}
	if cfg.Server.Name == "" {
		cfg.Server.Name = "arcade-mcp"
	}
	if cfg.Server.Version == "" {
		cfg.Server.Version = "dev"
	}

	if cfg.Notifications.RateLimitPerMinute == 0 {
		cfg.Notifications.RateLimitPerMinute = 60
	}
	if cfg.Notifications.DebounceMs == 0 {
		cfg.Notifications.DebounceMs = 100
	}

	if cfg.Sessions.MaxQueue == 0 {
		cfg.Sessions.MaxQueue = 1000
	}
	if cfg.Sessions.TimeoutSeconds == 0 {
		cfg.Sessions.TimeoutSeconds = 300
	}
	if cfg.Sessions.CleanupIntervalSeconds == 0 {
		cfg.Sessions.CleanupIntervalSeconds = 10
	}
	if cfg.Sessions.MaxSessions == 0 {
		cfg.Sessions.MaxSessions = 1000
	}

	if cfg.Requests.TimeoutSeconds == 0 {
		cfg.Requests.TimeoutSeconds = 60
	}

	if cfg.Events.MaxPerStream == 0 {
		cfg.Events.MaxPerStream = 1000
	}

	if cfg.Secrets == nil {
		cfg.Secrets = make(map[string]string)
	}
	if cfg.Auth.Providers == nil {
		cfg.Auth.Providers = make(map[string]ProviderConfig)
	}

	if cfg.Audit.DBPath == "" {
		cfg.Audit.DBPath = filepath.Join("data", "audit.db")
	}
	if cfg.Audit.RetentionDays == 0 {
		cfg.Audit.RetentionDays = 30
	}
	if cfg.Audit.RetentionSchedule == "" {
		cfg.Audit.RetentionSchedule = "0 3 * * *"
	}
}

// LoadEnvFile loads KEY=VALUE lines from path into the process
// environment. Variables already set in the environment win; lines
// starting with # and blank lines are skipped.
func LoadEnvFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening env file: %w", err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}
		if key == "" {
			continue
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("setting %s: %w", key, err)
		}
	}
	return scanner.Err()
}

// stripJSONComments removes // and /* */ comments from JSONC content.
// Comment markers inside string literals are preserved.
func stripJSONComments(data []byte) []byte {
	out := make([]byte, 0, len(data))

	inString := false
	escaped := false
	for i := 0; i < len(data); i++ {
		c := data[i]

		if inString {
			out = append(out, c)
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}

		switch {
		case c == '"':
			inString = true
			out = append(out, c)
		case c == '/' && i+1 < len(data) && data[i+1] == '/':
			for i < len(data) && data[i] != '\n' {
				i++
			}
			if i < len(data) {
				out = append(out, '\n')
			}
		case c == '/' && i+1 < len(data) && data[i+1] == '*':
			i += 2
			for i+1 < len(data) && !(data[i] == '*' && data[i+1] == '/') {
				i++
			}
			i++ // skip the closing '/'
		default:
			out = append(out, c)
		}
	}

	return out
}
