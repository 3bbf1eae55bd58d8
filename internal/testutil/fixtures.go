// Package testutil provides shared fixtures for package tests: canned
// configurations and catalog tools with predictable behavior.
package testutil

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/ArcadeAI/arcade-mcp-go/internal/catalog"
	"github.com/ArcadeAI/arcade-mcp-go/internal/config"
)

// ConfigOption is a function that modifies a Config for testing.
type ConfigOption func(*config.Config)

// NewTestConfig creates a test config with small queues and a generous
// rate limit so tests run fast and never trip throttling.
func NewTestConfig(t *testing.T, opts ...ConfigOption) *config.Config {
	t.Helper()

	cfg := &config.Config{}
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 7777
	cfg.Server.Name = "arcade-mcp"
	cfg.Server.Version = "test"
	cfg.Server.Instructions = "Test server."
	cfg.Notifications.RateLimitPerMinute = 600
	cfg.Notifications.DebounceMs = 20
	cfg.Sessions.MaxQueue = 64
	cfg.Events.MaxPerStream = 100
	cfg.Secrets = map[string]string{}

	for _, opt := range opts {
		opt(cfg)
	}

	return cfg
}

// WithWorkerSecret enables worker bearer auth with the given secret.
func WithWorkerSecret(secret string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Env.WorkerSecret = secret
	}
}

// WithMaxSessions caps the session table.
func WithMaxSessions(n int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Sessions.MaxSessions = n
	}
}

// WithSessionTimeout sets the idle session eviction timeout.
func WithSessionTimeout(seconds int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Sessions.TimeoutSeconds = seconds
	}
}

// WithSecret adds one secret available to tools.
func WithSecret(key, value string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Secrets[key] = value
	}
}

// WithAuthDisabled turns off tool authorization checks.
func WithAuthDisabled() ConfigOption {
	return func(cfg *config.Config) {
		cfg.Auth.Disabled = true
	}
}

// MathAddTool returns the canonical test tool: math.add sums its two
// number arguments into {"result": n}.
func MathAddTool() *catalog.MaterializedTool {
	return &catalog.MaterializedTool{
		Definition: catalog.Definition{
			Name:        "add",
			Toolkit:     "math",
			Description: "Adds two numbers.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"a": {Type: "number"},
					"b": {Type: "number"},
				},
				Required: []string{"a", "b"},
			},
			OutputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"result": {Type: "number"},
				},
			},
		},
		Handler: func(ctx context.Context, tctx *catalog.ToolContext, args json.RawMessage) (any, error) {
			var in struct {
				A float64 `json:"a"`
				B float64 `json:"b"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, err
			}
			return map[string]any{"result": in.A + in.B}, nil
		},
	}
}
