package suites

import (
	"encoding/json"
	"net/http"
	"time"

	testpkg "github.com/ArcadeAI/arcade-mcp-go/test/pkg/testing"
)

// GetWorkerTests returns tests for the engine-facing worker surface:
// catalog listing and direct tool invocation outside MCP sessions.
func GetWorkerTests() []*testpkg.TestCase {
	return []*testpkg.TestCase{
		{
			Name:        "test_worker_health",
			Description: "Worker health reports the registered tool count",
			Tags:        []string{"worker"},
			Covers:      []string{"endpoint:/worker/health"},
			Timeout:     10 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				health, err := ctx.Worker.Health()
				ctx.Assertions.AssertNoError(err, "Worker health should succeed")
				if err != nil {
					return err
				}

				ctx.Assertions.AssertEqual("ok", health.Status, "Status should be ok")
				ctx.Assertions.AssertGreaterThan(health.ToolCount, 0, "Tool count should be positive")
				return nil
			},
		},

		{
			Name:        "test_worker_catalog_entries",
			Description: "The catalog lists tools with their requirements",
			Tags:        []string{"worker"},
			Covers:      []string{"endpoint:/worker/catalog"},
			Timeout:     10 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				tools, err := ctx.Worker.Catalog()
				ctx.Assertions.AssertNoError(err, "Catalog should succeed")
				if err != nil {
					return err
				}

				ctx.Assertions.AssertGreaterThan(len(tools), 0, "Catalog should not be empty")

				var echo, useSecret *testWorkerTool
				for i := range tools {
					switch tools[i].FullyQualifiedName {
					case "demo.echo":
						echo = &testWorkerTool{tools[i].Name, tools[i].RequiredSecrets}
					case "demo.use_secret":
						useSecret = &testWorkerTool{tools[i].Name, tools[i].RequiredSecrets}
					}
				}

				ctx.Assertions.AssertTrue(echo != nil, "Catalog should contain demo.echo")
				if echo != nil {
					ctx.Assertions.AssertEqual("echo", echo.name, "Entry name should be the bare tool name")
				}
				ctx.Assertions.AssertTrue(useSecret != nil, "Catalog should contain demo.use_secret")
				if useSecret != nil {
					found := false
					for _, key := range useSecret.secrets {
						if key == "API_KEY" {
							found = true
						}
					}
					ctx.Assertions.AssertTrue(found, "use_secret should declare its API_KEY requirement")
				}

				return nil
			},
		},

		{
			Name:        "test_worker_invoke_add",
			Description: "Invoking a tool returns its raw value and timing",
			Tags:        []string{"worker"},
			Covers:      []string{"endpoint:/worker/tools/invoke", "tool:demo_add"},
			Timeout:     10 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				result, err := ctx.Worker.Invoke("demo", "add",
					map[string]interface{}{"a": 2, "b": 3}, "integration-user")
				ctx.Assertions.AssertNoError(err, "Invoke should succeed")
				if err != nil {
					return err
				}

				ctx.Assertions.AssertTrue(result.Success, "Invoke should report success")
				ctx.Assertions.AssertNotEmpty(result.InvocationID, "Invoke should assign an invocation ID")
				ctx.Assertions.AssertNotEmpty(result.FinishedAt, "Invoke should timestamp completion")
				if result.Output == nil {
					ctx.Assertions.Fail("Invoke returned no output")
					return nil
				}
				ctx.Assertions.AssertEqual(5.0, result.Output.Value, "2 + 3 should be 5")
				return nil
			},
		},

		{
			Name:        "test_worker_invoke_unknown_tool",
			Description: "Unknown tools fail in the body, not at the HTTP layer",
			Tags:        []string{"worker", "errors"},
			Covers:      []string{"endpoint:/worker/tools/invoke"},
			Timeout:     10 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				result, err := ctx.Worker.Invoke("demo", "does_not_exist", nil, "integration-user")
				ctx.Assertions.AssertNoError(err, "Invoke should complete with HTTP 200")
				if err != nil {
					return err
				}

				ctx.Assertions.AssertFalse(result.Success, "Unknown tool should report failure")
				if result.Error == nil {
					ctx.Assertions.Fail("Failed invoke returned no error body")
					return nil
				}
				ctx.Assertions.AssertContains(result.Error.Message, "unknown tool", "Error should name the problem")
				return nil
			},
		},

		{
			Name:        "test_worker_invoke_requires_tool_name",
			Description: "Requests without a tool reference are rejected",
			Tags:        []string{"worker", "errors"},
			Covers:      []string{"endpoint:/worker/tools/invoke"},
			Timeout:     10 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				payload, _ := json.Marshal(map[string]interface{}{
					"inputs": map[string]interface{}{},
				})
				status, body, err := ctx.Worker.Raw(http.MethodPost, "/worker/tools/invoke", payload)
				ctx.Assertions.AssertNoError(err, "Request should complete")
				if err != nil {
					return err
				}

				ctx.Assertions.AssertEqual(http.StatusBadRequest, status, "Missing tool reference should return 400")
				ctx.Assertions.AssertContains(body, "Missing tool.toolkit or tool.name", "Error should say what is missing")
				return nil
			},
		},

		{
			Name:        "test_worker_invoke_validates_inputs",
			Description: "Schema validation applies to worker invocations too",
			Tags:        []string{"worker", "errors"},
			Covers:      []string{"endpoint:/worker/tools/invoke", "tool:demo_add"},
			Timeout:     10 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				result, err := ctx.Worker.Invoke("demo", "add",
					map[string]interface{}{"a": "two", "b": 3}, "integration-user")
				ctx.Assertions.AssertNoError(err, "Invoke should complete with HTTP 200")
				if err != nil {
					return err
				}

				ctx.Assertions.AssertFalse(result.Success, "Bad inputs should report failure")
				if result.Error == nil {
					ctx.Assertions.Fail("Failed invoke returned no error body")
					return nil
				}
				ctx.Assertions.AssertContains(result.Error.Message, "validation", "Error should report validation failure")
				return nil
			},
		},
	}
}

// testWorkerTool holds the catalog fields the worker suite checks.
type testWorkerTool struct {
	name    string
	secrets []string
}
