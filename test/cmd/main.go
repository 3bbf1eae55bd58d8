package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ArcadeAI/arcade-mcp-go/test/pkg/client"
	"github.com/ArcadeAI/arcade-mcp-go/test/pkg/coverage"
	"github.com/ArcadeAI/arcade-mcp-go/test/pkg/repl"
	"github.com/ArcadeAI/arcade-mcp-go/test/pkg/suites"
	testpkg "github.com/ArcadeAI/arcade-mcp-go/test/pkg/testing"
)

func main() {
	// Parse flags
	serverURL := flag.String("server", "http://localhost:7777/mcp", "Arcade MCP server URL")
	workerSecret := flag.String("secret", "", "Worker bearer secret (or set ARCADE_WORKER_SECRET env var)")
	interactive := flag.Bool("interactive", false, "Start interactive REPL mode")
	interactiveShort := flag.Bool("i", false, "Start interactive REPL mode (shorthand)")
	testMode := flag.Bool("test", false, "Run automated tests")
	coverageReport := flag.Bool("coverage-report", false, "Show test coverage report")
	testFilter := flag.String("filter", "", "Filter tests by name (substring match)")
	testTags := flag.String("tags", "", "Filter tests by tags (comma-separated)")
	excludeTags := flag.String("exclude-tags", "", "Exclude tests with these tags (comma-separated)")
	verbose := flag.Bool("verbose", false, "Enable verbose output")
	jsonOutput := flag.Bool("json", false, "Output results as JSON")
	listTools := flag.Bool("list-tools", false, "List all available tools")
	tool := flag.String("tool", "", "Tool name to invoke")
	params := flag.String("params", "{}", "Tool parameters as JSON")
	flag.Parse()

	// Get worker secret from flag or environment
	secret := *workerSecret
	if secret == "" {
		secret = os.Getenv("ARCADE_WORKER_SECRET")
	}

	// The worker and operational endpoints live next to /mcp on the
	// same listener.
	baseURL := strings.TrimSuffix(*serverURL, "/mcp")

	// Create clients
	mcpClient := client.NewMCPClient(*serverURL)
	if secret != "" {
		mcpClient.SetWorkerSecret(secret)
	}
	worker := client.NewWorkerClient(baseURL, secret)

	// Test connection
	if err := mcpClient.Connect(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to server: %v\n", err)
		os.Exit(1)
	}

	if !*jsonOutput {
		fmt.Printf("✓ Connected to Arcade MCP server at %s\n\n", *serverURL)
	}

	// Show coverage report if requested
	if *coverageReport {
		// Get test directory (parent of cmd directory)
		testDir, err := os.Getwd()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to get working directory: %v\n", err)
			os.Exit(1)
		}
		// If we're in test/cmd, go up one level to test/
		if strings.HasSuffix(testDir, "/cmd") || strings.HasSuffix(testDir, "\\cmd") {
			testDir = filepath.Dir(testDir)
		}

		analyzer := coverage.NewAnalyzer(mcpClient, testDir)
		report, err := analyzer.Analyze()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to analyze coverage: %v\n", err)
			os.Exit(1)
		}

		report.PrintReport()

		// Print suggestions for untested tools
		if report.Tools != nil && len(report.Tools.UntestedList) > 0 {
			fmt.Println("💡 Suggestions:")
			for _, toolName := range report.Tools.UntestedList {
				suite := coverage.SuggestTestSuite(toolName)
				fmt.Printf("  • Add test for %s to pkg/suites/%s\n", toolName, suite)
			}
		}

		// Exit with error code if coverage is below 100%
		if report.OverallPercent < 100.0 {
			os.Exit(1)
		}
		return
	}

	// Run tests if requested
	if *testMode {
		runner := testpkg.NewTestRunner(mcpClient, worker)
		runner.SetVerbose(*verbose)
		runner.SetJSONOutput(*jsonOutput)

		// Parse filter
		filter := testpkg.TestFilter{
			NamePattern: *testFilter,
		}

		if *testTags != "" {
			filter.Tags = strings.Split(*testTags, ",")
		}

		if *excludeTags != "" {
			filter.ExcludeTags = strings.Split(*excludeTags, ",")
		}

		runner.SetFilter(filter)

		// Add test suites
		runner.AddTests(suites.GetBasicTests())
		runner.AddTests(suites.GetToolTests())   // Demo toolkit behavior
		runner.AddTests(suites.GetAuthTests())   // Bearer auth and secret handling
		runner.AddTests(suites.GetWorkerTests()) // Worker HTTP endpoints

		// Run tests
		_ = runner.Run()

		// Exit with appropriate code
		os.Exit(runner.ExitCode())
	}

	// Start interactive REPL if requested
	if *interactive || *interactiveShort {
		replInstance := repl.NewREPL(mcpClient)
		if err := replInstance.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "REPL error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// List tools if requested
	if *listTools {
		tools, err := mcpClient.ListTools()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to list tools: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Available tools (%d):\n", len(tools))
		for _, t := range tools {
			fmt.Printf("  - %s\n", t.Name)
			if t.Description != "" {
				fmt.Printf("    %s\n", t.Description)
			}
		}
		return
	}

	// Invoke tool if specified
	if *tool != "" {
		// Parse parameters
		var toolParams map[string]interface{}
		if err := json.Unmarshal([]byte(*params), &toolParams); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to parse parameters: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Invoking tool: %s\n", *tool)
		fmt.Printf("Parameters: %s\n\n", *params)

		// Invoke tool
		result, err := mcpClient.InvokeTool(*tool, toolParams)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to invoke tool: %v\n", err)
			os.Exit(1)
		}

		// Display result
		if result.IsError {
			fmt.Println("❌ Tool returned error:")
		} else {
			fmt.Println("✓ Tool succeeded:")
		}

		content := result.GetToolContent()
		fmt.Println(content)

		if result.IsError {
			os.Exit(1)
		}
		return
	}

	// No action specified
	fmt.Println("Usage:")
	fmt.Println("  Test mode:     arcade-mcp-test --test [--filter <pattern>] [--tags <tags>] [--verbose] [--json]")
	fmt.Println("  Coverage:      arcade-mcp-test --coverage-report")
	fmt.Println("  Interactive:   arcade-mcp-test -i")
	fmt.Println("  List tools:    arcade-mcp-test --list-tools")
	fmt.Println("  Invoke tool:   arcade-mcp-test --tool <name> --params '{\"key\":\"value\"}'")
	fmt.Println("\nExamples:")
	fmt.Println("  arcade-mcp-test --test                         # Run all tests")
	fmt.Println("  arcade-mcp-test --coverage-report              # Show test coverage")
	fmt.Println("  arcade-mcp-test --test --filter echo           # Run tests matching 'echo'")
	fmt.Println("  arcade-mcp-test --test --tags smoke            # Run tests tagged 'smoke'")
	fmt.Println("  arcade-mcp-test --test --verbose               # Run with verbose logging")
	fmt.Println("  arcade-mcp-test --test --json                  # Output as JSON")
	fmt.Println("  arcade-mcp-test -i                             # Start interactive REPL")
	fmt.Println("  arcade-mcp-test --list-tools                   # List all tools")
	fmt.Println("  arcade-mcp-test --tool demo_current_time")
	fmt.Println("  arcade-mcp-test --tool demo_echo --params '{\"text\":\"hello\"}'")
}
