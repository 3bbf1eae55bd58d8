package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ArcadeAI/arcade-mcp-go/internal/catalog"
)

const demoToolkitVersion = "1.0.0"

// The demo toolkit gives a fresh install something to call. Deployments
// register their own toolkits the same way and can drop these.

type echoParams struct {
	Text string `json:"text" description:"The text to echo back"`
}

type addParams struct {
	A float64 `json:"a" description:"First number"`
	B float64 `json:"b" description:"Second number"`
}

type currentTimeParams struct {
	Timezone string `json:"timezone,omitempty" description:"IANA timezone name (default UTC)"`
}

type processListParams struct {
	Items     []string `json:"items" description:"Items to process"`
	Operation string   `json:"operation,omitempty" description:"One of count, reverse, sort, unique (default count)"`
}

type useSecretParams struct{}

type logLevelsParams struct {
	Message string `json:"message,omitempty" description:"Base message to log (default Hello)"`
}

func registerBuiltinTools(cat *catalog.Catalog) error {
	if err := catalog.Register(cat, catalog.Definition{
		Name:           "echo",
		Toolkit:        "demo",
		ToolkitVersion: demoToolkitVersion,
		Description:    "Echo back the provided text",
	}, func(ctx context.Context, tctx *catalog.ToolContext, p echoParams) (any, error) {
		return p.Text, nil
	}); err != nil {
		return err
	}

	if err := catalog.Register(cat, catalog.Definition{
		Name:           "add",
		Toolkit:        "demo",
		ToolkitVersion: demoToolkitVersion,
		Description:    "Add two numbers together",
	}, func(ctx context.Context, tctx *catalog.ToolContext, p addParams) (any, error) {
		return p.A + p.B, nil
	}); err != nil {
		return err
	}

	if err := catalog.Register(cat, catalog.Definition{
		Name:           "current_time",
		Toolkit:        "demo",
		ToolkitVersion: demoToolkitVersion,
		Description:    "Get the current time for the calling user",
	}, func(ctx context.Context, tctx *catalog.ToolContext, p currentTimeParams) (any, error) {
		loc := time.UTC
		if p.Timezone != "" {
			l, err := time.LoadLocation(p.Timezone)
			if err != nil {
				return nil, fmt.Errorf("unknown timezone %q", p.Timezone)
			}
			loc = l
		}
		user := tctx.UserID
		if user == "" {
			user = "anonymous"
		}
		now := time.Now().In(loc)
		return fmt.Sprintf("Current time in %s: %s (user: %s)", loc, now.Format("2006-01-02 15:04:05"), user), nil
	}); err != nil {
		return err
	}

	if err := catalog.Register(cat, catalog.Definition{
		Name:           "process_list",
		Toolkit:        "demo",
		ToolkitVersion: demoToolkitVersion,
		Description:    "Process a list of items: count, reverse, sort, or unique",
	}, func(ctx context.Context, tctx *catalog.ToolContext, p processListParams) (any, error) {
		op := p.Operation
		if op == "" {
			op = "count"
		}
		switch op {
		case "count":
			return map[string]any{"result": len(p.Items), "operation": op}, nil
		case "reverse":
			out := make([]string, len(p.Items))
			for i, item := range p.Items {
				out[len(p.Items)-1-i] = item
			}
			return map[string]any{"result": out, "operation": op}, nil
		case "sort":
			out := append([]string(nil), p.Items...)
			sort.Strings(out)
			return map[string]any{"result": out, "operation": op}, nil
		case "unique":
			seen := make(map[string]bool, len(p.Items))
			out := make([]string, 0, len(p.Items))
			for _, item := range p.Items {
				if !seen[item] {
					seen[item] = true
					out = append(out, item)
				}
			}
			return map[string]any{"result": out, "operation": op}, nil
		default:
			return nil, fmt.Errorf("unknown operation %q", op)
		}
	}); err != nil {
		return err
	}

	if err := catalog.Register(cat, catalog.Definition{
		Name:           "use_secret",
		Toolkit:        "demo",
		ToolkitVersion: demoToolkitVersion,
		Description:    "Confirm a secret is available without revealing it",
		Requirements: catalog.Requirements{
			Secrets: []catalog.SecretRequirement{{Key: "API_KEY"}},
		},
	}, func(ctx context.Context, tctx *catalog.ToolContext, p useSecretParams) (any, error) {
		value, ok := tctx.Secret("API_KEY")
		if !ok {
			return nil, fmt.Errorf("secret API_KEY is not configured")
		}
		return fmt.Sprintf("Got API_KEY of length %d -> %s", len(value), maskSecret(value)), nil
	}); err != nil {
		return err
	}

	return catalog.Register(cat, catalog.Definition{
		Name:           "log_levels",
		Toolkit:        "demo",
		ToolkitVersion: demoToolkitVersion,
		Description:    "Emit log messages at every level",
	}, func(ctx context.Context, tctx *catalog.ToolContext, p logLevelsParams) (any, error) {
		msg := p.Message
		if msg == "" {
			msg = "Hello"
		}
		for _, level := range []string{"debug", "info", "notice", "warning", "error", "critical"} {
			tctx.Log(level, fmt.Sprintf("%s: %s", level, msg))
		}
		return "Logged at all levels", nil
	})
}

func maskSecret(value string) string {
	if len(value) < 2 {
		return "***"
	}
	return value[:2] + "***"
}
