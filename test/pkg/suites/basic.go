package suites

import (
	"net/http"
	"time"

	testpkg "github.com/ArcadeAI/arcade-mcp-go/test/pkg/testing"
)

// GetBasicTests returns smoke tests for the server's protocol surface
// and ops endpoints.
func GetBasicTests() []*testpkg.TestCase {
	return []*testpkg.TestCase{
		{
			Name:        "test_connection",
			Description: "Verify MCP handshake and tool listing",
			Tags:        []string{"basic", "smoke"},
			Timeout:     10 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				tools, err := ctx.Client.ListTools()
				ctx.Assertions.AssertNoError(err, "Should list tools without error")
				if err != nil {
					return err
				}

				ctx.Assertions.AssertGreaterThan(len(tools), 0, "Should have at least 1 tool")

				names := map[string]bool{}
				for _, tool := range tools {
					names[tool.Name] = true
					ctx.Assertions.AssertNotEmpty(tool.Name, "Every tool should have a name")
				}
				ctx.Assertions.AssertTrue(names["demo_echo"], "Should advertise demo_echo")
				ctx.Assertions.AssertTrue(names["demo_add"], "Should advertise demo_add")

				return nil
			},
		},

		{
			Name:        "test_ping",
			Description: "Verify ping round trip",
			Tags:        []string{"basic", "smoke"},
			Timeout:     10 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				err := ctx.Client.Ping()
				ctx.Assertions.AssertNoError(err, "Ping should succeed")
				return err
			},
		},

		{
			Name:        "test_health_endpoints",
			Description: "Verify /health and /ready report ok",
			Tags:        []string{"basic", "ops"},
			Covers:      []string{"endpoint:/health", "endpoint:/ready"},
			Timeout:     10 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				status, body, err := ctx.Worker.Raw(http.MethodGet, "/health", nil)
				ctx.Assertions.AssertNoError(err, "GET /health should succeed")
				ctx.Assertions.AssertEqual(http.StatusOK, status, "/health should return 200")
				ctx.Assertions.AssertContains(body, `"status":"ok"`, "/health body should report ok")

				status, body, err = ctx.Worker.Raw(http.MethodGet, "/ready", nil)
				ctx.Assertions.AssertNoError(err, "GET /ready should succeed")
				ctx.Assertions.AssertEqual(http.StatusOK, status, "/ready should return 200")
				ctx.Assertions.AssertContains(body, `"status":"ready"`, "/ready body should report ready")

				return nil
			},
		},

		{
			Name:        "test_metrics_endpoint",
			Description: "Verify Prometheus metrics are exposed",
			Tags:        []string{"basic", "ops"},
			Covers:      []string{"endpoint:/metrics"},
			Timeout:     10 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				status, body, err := ctx.Worker.Raw(http.MethodGet, "/metrics", nil)
				ctx.Assertions.AssertNoError(err, "GET /metrics should succeed")
				ctx.Assertions.AssertEqual(http.StatusOK, status, "/metrics should return 200")
				ctx.Assertions.AssertContains(body, "go_goroutines", "Metrics should include Go runtime gauges")
				return nil
			},
		},

		{
			Name:        "test_resources_and_prompts_listable",
			Description: "Verify resources/list and prompts/list answer",
			Tags:        []string{"basic", "protocol"},
			Timeout:     10 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				uris, err := ctx.Client.ListResourceURIs()
				ctx.Assertions.AssertNoError(err, "resources/list should succeed")
				if err == nil {
					ctx.Assertions.LogInfo("Server lists %d resource(s)", len(uris))
				}

				prompts, err := ctx.Client.ListPromptNames()
				ctx.Assertions.AssertNoError(err, "prompts/list should succeed")
				if err == nil {
					ctx.Assertions.LogInfo("Server lists %d prompt(s)", len(prompts))
				}

				return nil
			},
		},
	}
}
