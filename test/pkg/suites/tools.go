package suites

import (
	"fmt"
	"time"

	testpkg "github.com/ArcadeAI/arcade-mcp-go/test/pkg/testing"
)

// GetToolTests returns behavior tests for the demo toolkit and the
// tools/call error paths.
func GetToolTests() []*testpkg.TestCase {
	return []*testpkg.TestCase{
		{
			Name:        "test_echo_roundtrip",
			Description: "Echo returns the input text unchanged",
			Tags:        []string{"tools"},
			Timeout:     10 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				message := fmt.Sprintf("integration ping %d", time.Now().UnixNano())
				result, err := ctx.CallTool("demo_echo", map[string]interface{}{"text": message})
				ctx.Assertions.AssertNoError(err, "demo_echo should not fail at the protocol level")
				if err != nil {
					return err
				}

				ctx.Assertions.AssertFalse(result.IsError, "demo_echo should not return an error result")
				ctx.Assertions.AssertEqual(message, result.GetToolContent(), "Echoed text should match input")
				return nil
			},
		},

		{
			Name:        "test_add_returns_sum",
			Description: "Add returns the numeric sum",
			Tags:        []string{"tools"},
			Timeout:     10 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				result, err := ctx.CallTool("demo_add", map[string]interface{}{"a": 2, "b": 3})
				ctx.Assertions.AssertNoError(err, "demo_add should not fail at the protocol level")
				if err != nil {
					return err
				}

				ctx.Assertions.AssertFalse(result.IsError, "demo_add should not return an error result")
				ctx.Assertions.AssertEqual("5", result.GetToolContent(), "2 + 3 should render as 5")
				return nil
			},
		},

		{
			Name:        "test_process_list_operations",
			Description: "process_list supports count, reverse, sort, and unique",
			Tags:        []string{"tools"},
			Timeout:     15 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				items := []string{"cherry", "apple", "banana"}
				dupes := []string{"banana", "apple", "banana"}

				result, err := ctx.CallTool("demo_process_list", map[string]interface{}{"items": dupes})
				ctx.Assertions.AssertNoError(err, "Default operation should succeed")
				if err != nil {
					return err
				}
				ctx.Assertions.AssertFalse(result.IsError, "Default operation should not error")
				ctx.Assertions.AssertContains(result.GetToolContent(), `"result":3`, "Default operation should count items")
				ctx.Assertions.AssertContains(result.GetToolContent(), `"operation":"count"`, "Result should name the operation")

				result, err = ctx.CallTool("demo_process_list", map[string]interface{}{
					"items": items, "operation": "reverse",
				})
				ctx.Assertions.AssertNoError(err, "Reverse should succeed")
				if err != nil {
					return err
				}
				ctx.Assertions.AssertContains(result.GetToolContent(), `["banana","apple","cherry"]`, "Reverse should flip item order")

				result, err = ctx.CallTool("demo_process_list", map[string]interface{}{
					"items": items, "operation": "sort",
				})
				ctx.Assertions.AssertNoError(err, "Sort should succeed")
				if err != nil {
					return err
				}
				ctx.Assertions.AssertContains(result.GetToolContent(), `["apple","banana","cherry"]`, "Sort should order items")

				result, err = ctx.CallTool("demo_process_list", map[string]interface{}{
					"items": dupes, "operation": "unique",
				})
				ctx.Assertions.AssertNoError(err, "Unique should succeed")
				if err != nil {
					return err
				}
				ctx.Assertions.AssertContains(result.GetToolContent(), `["banana","apple"]`, "Unique should keep first occurrences")

				return nil
			},
		},

		{
			Name:        "test_process_list_rejects_unknown_operation",
			Description: "Unknown operations come back as tool errors",
			Tags:        []string{"tools", "errors"},
			Timeout:     10 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				result, err := ctx.CallTool("demo_process_list", map[string]interface{}{
					"items": []string{"a"}, "operation": "explode",
				})
				ctx.Assertions.AssertNoError(err, "Call should complete at the protocol level")
				if err != nil {
					return err
				}

				ctx.Assertions.AssertTrue(result.IsError, "Unknown operation should be an error result")
				ctx.Assertions.AssertContains(result.GetToolContent(), "unknown operation", "Error should name the problem")
				return nil
			},
		},

		{
			Name:        "test_current_time",
			Description: "current_time formats the time and rejects bad timezones",
			Tags:        []string{"tools"},
			Timeout:     10 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				result, err := ctx.CallTool("demo_current_time", map[string]interface{}{})
				ctx.Assertions.AssertNoError(err, "Default timezone should succeed")
				if err != nil {
					return err
				}
				ctx.Assertions.AssertFalse(result.IsError, "Default timezone should not error")
				ctx.Assertions.AssertContains(result.GetToolContent(), "Current time in UTC", "Default timezone should be UTC")

				result, err = ctx.CallTool("demo_current_time", map[string]interface{}{
					"timezone": "Mars/Olympus",
				})
				ctx.Assertions.AssertNoError(err, "Bad timezone should complete at the protocol level")
				if err != nil {
					return err
				}
				ctx.Assertions.AssertTrue(result.IsError, "Bad timezone should be an error result")
				ctx.Assertions.AssertContains(result.GetToolContent(), "unknown timezone", "Error should name the timezone problem")

				return nil
			},
		},

		{
			Name:        "test_unknown_tool",
			Description: "Calling a tool that does not exist is an error result",
			Tags:        []string{"tools", "errors"},
			Timeout:     10 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				result, err := ctx.CallTool("does_not_exist", map[string]interface{}{})
				ctx.Assertions.AssertNoError(err, "Call should complete at the protocol level")
				if err != nil {
					return err
				}

				ctx.Assertions.AssertTrue(result.IsError, "Unknown tool should be an error result")
				ctx.Assertions.AssertContains(result.GetToolContent(), "Unknown tool", "Error should say the tool is unknown")
				return nil
			},
		},

		{
			Name:        "test_invalid_arguments_rejected",
			Description: "Arguments failing schema validation are rejected",
			Tags:        []string{"tools", "errors"},
			Timeout:     10 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				result, err := ctx.CallTool("demo_add", map[string]interface{}{"a": "two", "b": 3})
				ctx.Assertions.AssertNoError(err, "Call should complete at the protocol level")
				if err != nil {
					return err
				}

				ctx.Assertions.AssertTrue(result.IsError, "Type mismatch should be an error result")
				ctx.Assertions.AssertContains(result.GetToolContent(), "Invalid arguments", "Error should report validation failure")
				return nil
			},
		},

		{
			Name:        "test_log_capture",
			Description: "Tool logs ride back on the result over single-shot transports",
			Tags:        []string{"tools", "logging"},
			Timeout:     10 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				result, err := ctx.CallTool("demo_log_levels", map[string]interface{}{"message": "integration"})
				ctx.Assertions.AssertNoError(err, "demo_log_levels should succeed")
				if err != nil {
					return err
				}

				ctx.Assertions.AssertFalse(result.IsError, "demo_log_levels should not error")
				content := result.GetToolContent()
				ctx.Assertions.AssertContains(content, "Logged at all levels", "Result should carry the tool's return value")
				ctx.Assertions.AssertContains(content, "debug", "Captured logs should include the debug entry")
				ctx.Assertions.AssertContains(content, "critical", "Captured logs should include the critical entry")
				ctx.Assertions.AssertTrue(result.Metadata != nil, "Captured logs should be mirrored into _meta")
				return nil
			},
		},
	}
}
