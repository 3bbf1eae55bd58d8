package testing

import (
	"fmt"
	"time"

	"github.com/ArcadeAI/arcade-mcp-go/test/pkg/client"
)

// TestCase represents a single test scenario
type TestCase struct {
	Name        string
	Description string
	Tags        []string
	Covers      []string // Coverage annotations like "tool:demo_echo", "endpoint:/worker/catalog"
	Setup       func(*TestContext) error
	Execute     func(*TestContext) error
	Teardown    func(*TestContext) error
	Timeout     time.Duration
}

// TestContext provides state and utilities for test execution
type TestContext struct {
	Client     *client.MCPClient
	Worker     *client.WorkerClient
	Assertions *Assertions
	Logs       []string
	Failed     bool
}

// NewTestContext creates a new test context around the two clients
func NewTestContext(mcpClient *client.MCPClient, worker *client.WorkerClient) *TestContext {
	ctx := &TestContext{
		Client: mcpClient,
		Worker: worker,
		Logs:   []string{},
		Failed: false,
	}
	ctx.Assertions = NewAssertions(ctx)
	return ctx
}

// Log adds a log message to the test context
func (tc *TestContext) Log(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	tc.Logs = append(tc.Logs, msg)
}

// MarkFailed marks the test as failed
func (tc *TestContext) MarkFailed() {
	tc.Failed = true
}

// CallTool invokes a tool over MCP and logs the round trip
func (tc *TestContext) CallTool(name string, params map[string]interface{}) (*client.ToolResult, error) {
	tc.Log("Calling tool: %s", name)
	result, err := tc.Client.InvokeTool(name, params)
	if err != nil {
		tc.Log("Tool call failed: %v", err)
		return nil, err
	}
	if result.IsError {
		tc.Log("Tool returned error: %s", result.GetToolContent())
	}
	return result, nil
}

// ToolNames lists the advertised tools as a membership set
func (tc *TestContext) ToolNames() (map[string]bool, error) {
	tools, err := tc.Client.ListTools()
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	names := make(map[string]bool, len(tools))
	for _, tool := range tools {
		names[tool.Name] = true
	}
	return names, nil
}

// TestResult represents the outcome of a test execution
type TestResult struct {
	TestName   string
	Passed     bool
	Duration   time.Duration
	Error      error
	Logs       []string
	Assertions int
	FailedAt   string // Which phase failed: "setup", "execute", "teardown"
}

// Run executes the test case and returns the result
func (t *TestCase) Run(mcpClient *client.MCPClient, worker *client.WorkerClient) *TestResult {
	start := time.Now()
	ctx := NewTestContext(mcpClient, worker)
	result := &TestResult{
		TestName:   t.Name,
		Passed:     true,
		Assertions: 0,
	}

	defer func() {
		result.Logs = ctx.Logs
		result.Duration = time.Since(start)
		result.Assertions = ctx.Assertions.Count
	}()

	// Apply timeout if specified
	if t.Timeout > 0 {
		done := make(chan bool, 1)
		go func() {
			if err := t.runPhases(ctx, result); err != nil {
				result.Passed = false
				result.Error = err
			}
			done <- true
		}()

		select {
		case <-done:
			// Test completed
		case <-time.After(t.Timeout):
			result.Passed = false
			result.Error = fmt.Errorf("test timeout after %v", t.Timeout)
			result.FailedAt = "timeout"
		}
	} else {
		if err := t.runPhases(ctx, result); err != nil {
			result.Passed = false
			result.Error = err
		}
	}

	return result
}

// runPhases executes setup, execute, and teardown phases
func (t *TestCase) runPhases(ctx *TestContext, result *TestResult) error {
	if t.Setup != nil {
		ctx.Log("Running setup...")
		if err := t.Setup(ctx); err != nil {
			result.FailedAt = "setup"
			return fmt.Errorf("setup failed: %w", err)
		}
	}

	ctx.Log("Running test...")
	if err := t.Execute(ctx); err != nil {
		result.FailedAt = "execute"
		return fmt.Errorf("test failed: %w", err)
	}

	// Check if any assertions failed
	if ctx.Failed {
		result.FailedAt = "execute"
		return fmt.Errorf("test assertions failed")
	}

	if t.Teardown != nil {
		ctx.Log("Running teardown...")
		if err := t.Teardown(ctx); err != nil {
			result.FailedAt = "teardown"
			return fmt.Errorf("teardown failed: %w", err)
		}
	}

	return nil
}
