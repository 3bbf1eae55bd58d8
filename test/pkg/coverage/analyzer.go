package coverage

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ArcadeAI/arcade-mcp-go/test/pkg/client"
)

// knownEndpoints is the server's HTTP surface outside /mcp. The suites
// mark endpoint coverage with "endpoint:" annotations in Covers.
var knownEndpoints = []string{
	"/health",
	"/ready",
	"/metrics",
	"/worker/health",
	"/worker/catalog",
	"/worker/tools/invoke",
}

// ItemCoverage represents coverage information for a single item.
type ItemCoverage struct {
	Name        string
	Description string
	TestCount   int
	TestedBy    []string
}

// CategoryCoverage represents coverage for one category of items.
type CategoryCoverage struct {
	Items        map[string]*ItemCoverage
	Total        int
	Tested       int
	Untested     int
	Percent      float64
	UntestedList []string
}

// CoverageReport contains the full coverage analysis.
type CoverageReport struct {
	Tools     *CategoryCoverage
	Endpoints *CategoryCoverage

	TotalItems     int
	TestedItems    int
	OverallPercent float64
}

// Analyzer cross-references the server's advertised surface with the
// test suites that exercise it.
type Analyzer struct {
	client    *client.MCPClient
	suitesDir string
}

// NewAnalyzer creates a coverage analyzer rooted at the test directory.
func NewAnalyzer(mcpClient *client.MCPClient, testDir string) *Analyzer {
	return &Analyzer{
		client:    mcpClient,
		suitesDir: filepath.Join(testDir, "pkg", "suites"),
	}
}

// Analyze lists the live server's tools, scans the suites for
// invocations and annotations, and reports what is left untested.
func (a *Analyzer) Analyze() (*CoverageReport, error) {
	report := &CoverageReport{}

	tools, err := a.analyzeTools()
	if err != nil {
		return nil, fmt.Errorf("failed to analyze tool coverage: %w", err)
	}
	report.Tools = tools

	endpoints, err := a.analyzeEndpoints()
	if err != nil {
		return nil, fmt.Errorf("failed to analyze endpoint coverage: %w", err)
	}
	report.Endpoints = endpoints

	report.TotalItems = report.Tools.Total + report.Endpoints.Total
	report.TestedItems = report.Tools.Tested + report.Endpoints.Tested
	if report.TotalItems > 0 {
		report.OverallPercent = float64(report.TestedItems) / float64(report.TotalItems) * 100
	}

	return report, nil
}

// analyzeTools builds tool coverage from the live catalog.
func (a *Analyzer) analyzeTools() (*CategoryCoverage, error) {
	tools, err := a.client.ListTools()
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	coverage := &CategoryCoverage{Items: make(map[string]*ItemCoverage)}
	for _, tool := range tools {
		coverage.Items[tool.Name] = &ItemCoverage{
			Name:        tool.Name,
			Description: tool.Description,
		}
	}

	if err := a.scanSuites(coverage.Items, "tool:"); err != nil {
		return nil, err
	}

	calculateCategoryStats(coverage)
	return coverage, nil
}

// analyzeEndpoints builds coverage for the fixed HTTP surface.
func (a *Analyzer) analyzeEndpoints() (*CategoryCoverage, error) {
	coverage := &CategoryCoverage{Items: make(map[string]*ItemCoverage)}
	for _, endpoint := range knownEndpoints {
		coverage.Items[endpoint] = &ItemCoverage{Name: endpoint}
	}

	if err := a.scanSuites(coverage.Items, "endpoint:"); err != nil {
		return nil, err
	}

	calculateCategoryStats(coverage)
	return coverage, nil
}

// scanSuites walks the suite sources, crediting items for direct tool
// invocations and for Covers annotations carrying the given prefix.
func (a *Analyzer) scanSuites(coverage map[string]*ItemCoverage, prefix string) error {
	return filepath.Walk(a.suitesDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".go") {
			return nil
		}
		return a.scanFile(path, coverage, prefix)
	})
}

// scanFile parses one suite file. Tool items are credited by call
// sites (InvokeTool/CallTool string literals and Worker Invoke pairs);
// all items are additionally credited by Covers annotations.
func (a *Analyzer) scanFile(filename string, coverage map[string]*ItemCoverage, prefix string) error {
	fset := token.NewFileSet()
	node, err := parser.ParseFile(fset, filename, nil, parser.ParseComments)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", filename, err)
	}

	currentTest := ""
	credit := func(name string) {
		if cov, exists := coverage[name]; exists {
			cov.TestCount++
			if currentTest != "" && !contains(cov.TestedBy, currentTest) {
				cov.TestedBy = append(cov.TestedBy, currentTest)
			}
		}
	}

	ast.Inspect(node, func(n ast.Node) bool {
		switch x := n.(type) {
		case *ast.CompositeLit:
			if !isTestCaseLiteral(x) {
				return true
			}
			for _, elt := range x.Elts {
				kv, ok := elt.(*ast.KeyValueExpr)
				if !ok {
					continue
				}
				key, ok := kv.Key.(*ast.Ident)
				if !ok {
					continue
				}

				if key.Name == "Name" {
					if lit, ok := kv.Value.(*ast.BasicLit); ok {
						currentTest = strings.Trim(lit.Value, `"`)
					}
				}
				if key.Name == "Covers" {
					for _, item := range stringSlice(kv.Value) {
						if strings.HasPrefix(item, prefix) {
							credit(strings.TrimPrefix(item, prefix))
						}
					}
				}
			}

		case *ast.CallExpr:
			if prefix != "tool:" {
				return true
			}
			sel, ok := x.Fun.(*ast.SelectorExpr)
			if !ok {
				return true
			}
			switch sel.Sel.Name {
			case "InvokeTool", "CallTool":
				if len(x.Args) > 0 {
					if lit, ok := x.Args[0].(*ast.BasicLit); ok {
						credit(strings.Trim(lit.Value, `"`))
					}
				}
			case "Invoke":
				// Worker invocations name the toolkit and tool
				// separately; the wire name joins them.
				if len(x.Args) >= 2 {
					toolkit, ok1 := x.Args[0].(*ast.BasicLit)
					name, ok2 := x.Args[1].(*ast.BasicLit)
					if ok1 && ok2 {
						credit(strings.Trim(toolkit.Value, `"`) + "_" + strings.Trim(name.Value, `"`))
					}
				}
			}
		}
		return true
	})

	return nil
}

// isTestCaseLiteral recognizes both explicit testpkg.TestCase literals
// and the implicit element form inside []*testpkg.TestCase.
func isTestCaseLiteral(comp *ast.CompositeLit) bool {
	if sel, ok := comp.Type.(*ast.SelectorExpr); ok {
		return sel.Sel.Name == "TestCase"
	}
	if comp.Type != nil {
		return false
	}
	hasName := false
	hasExecute := false
	for _, elt := range comp.Elts {
		kv, ok := elt.(*ast.KeyValueExpr)
		if !ok {
			continue
		}
		if id, ok := kv.Key.(*ast.Ident); ok {
			switch id.Name {
			case "Name":
				hasName = true
			case "Execute":
				hasExecute = true
			}
		}
	}
	return hasName && hasExecute
}

// stringSlice extracts string literals from a composite literal value.
func stringSlice(value ast.Expr) []string {
	comp, ok := value.(*ast.CompositeLit)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(comp.Elts))
	for _, item := range comp.Elts {
		if lit, ok := item.(*ast.BasicLit); ok {
			out = append(out, strings.Trim(lit.Value, `"`))
		}
	}
	return out
}

// calculateCategoryStats fills in the aggregate fields.
func calculateCategoryStats(coverage *CategoryCoverage) {
	coverage.Total = len(coverage.Items)
	coverage.Tested = 0
	coverage.UntestedList = []string{}

	for name, item := range coverage.Items {
		if item.TestCount > 0 {
			coverage.Tested++
		} else {
			coverage.UntestedList = append(coverage.UntestedList, name)
		}
	}

	coverage.Untested = len(coverage.UntestedList)
	if coverage.Total > 0 {
		coverage.Percent = float64(coverage.Tested) / float64(coverage.Total) * 100
	}
	sort.Strings(coverage.UntestedList)
}

// contains checks if a string slice contains a string.
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// PrintReport prints a human-readable coverage report.
func (r *CoverageReport) PrintReport() {
	fmt.Println("========================================")
	fmt.Println("     External Surface Coverage Report    ")
	fmt.Println("========================================")
	fmt.Println()

	fmt.Println("OVERALL COVERAGE")
	fmt.Printf("  Total Items:    %d\n", r.TotalItems)
	fmt.Printf("  Tested Items:   %d\n", r.TestedItems)
	fmt.Printf("  Coverage:       %.1f%%\n", r.OverallPercent)
	fmt.Println()

	if r.Tools != nil {
		printCategoryReport("MCP Tools", r.Tools)
	}
	if r.Endpoints != nil {
		printCategoryReport("HTTP Endpoints", r.Endpoints)
	}
}

// printCategoryReport prints coverage for a single category.
func printCategoryReport(name string, cat *CategoryCoverage) {
	fmt.Println("----------------------------------------")
	fmt.Printf("%s: %d/%d (%.1f%%)\n", name, cat.Tested, cat.Total, cat.Percent)
	fmt.Println("----------------------------------------")

	if cat.Untested > 0 {
		fmt.Println("Untested:")
		for _, itemName := range cat.UntestedList {
			item := cat.Items[itemName]
			fmt.Printf("  - %s", itemName)
			if item.Description != "" {
				fmt.Printf(" - %s", item.Description)
			}
			fmt.Println()
		}
	}

	testedItems := []string{}
	for itemName, item := range cat.Items {
		if item.TestCount > 0 {
			testedItems = append(testedItems, itemName)
		}
	}
	sort.Strings(testedItems)

	if len(testedItems) > 0 {
		fmt.Println("Tested:")
		for _, itemName := range testedItems {
			item := cat.Items[itemName]
			fmt.Printf("  + %s (%d test(s))", itemName, item.TestCount)
			if len(item.TestedBy) > 0 {
				fmt.Printf(": %s", strings.Join(item.TestedBy, ", "))
			}
			fmt.Println()
		}
	}
	fmt.Println()
}

// SuggestTestSuite suggests which suite should cover an untested tool.
func SuggestTestSuite(toolName string) string {
	name := strings.ToLower(toolName)

	if strings.Contains(name, "secret") || strings.Contains(name, "auth") {
		return "auth.go"
	}
	if strings.Contains(name, "worker") {
		return "worker.go"
	}
	return "tools.go"
}
