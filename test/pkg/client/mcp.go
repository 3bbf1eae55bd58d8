package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// MCPClient drives the arcade-mcp server over the streamable HTTP
// transport, the same way an MCP host application would.
type MCPClient struct {
	serverURL    string
	workerSecret string
	client       *mcp.Client
	session      *mcp.ClientSession
	ctx          context.Context
}

// Tool is the subset of a tool listing the suites assert against.
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	InputSchema map[string]interface{} `json:"inputSchema,omitempty"`
}

// ToolResult carries one tools/call outcome back to the suites.
type ToolResult struct {
	Content    []mcp.Content
	IsError    bool
	Structured map[string]interface{}
	Metadata   map[string]interface{}
}

// NewMCPClient creates a client for the given /mcp endpoint URL.
func NewMCPClient(serverURL string) *MCPClient {
	return &MCPClient{
		serverURL: serverURL,
		ctx:       context.Background(),
	}
}

// SetWorkerSecret sets the bearer secret sent with every request.
// The MCP endpoint ignores it; the worker endpoints require it when
// the server was started with ARCADE_WORKER_SECRET.
func (c *MCPClient) SetWorkerSecret(secret string) {
	c.workerSecret = secret
}

// authTransport wraps http.RoundTripper to add the bearer header.
type authTransport struct {
	base   http.RoundTripper
	secret string
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.secret != "" {
		req.Header.Set("Authorization", "Bearer "+t.secret)
	}
	return t.base.RoundTrip(req)
}

// Connect performs the MCP handshake against the server.
func (c *MCPClient) Connect() error {
	c.client = mcp.NewClient(&mcp.Implementation{
		Name:    "arcade-mcp-test",
		Version: "0.1.0",
	}, nil)

	// No client timeout: tool calls may legitimately run long.
	httpClient := &http.Client{Timeout: 0}
	if c.workerSecret != "" {
		httpClient.Transport = &authTransport{
			base:   http.DefaultTransport,
			secret: c.workerSecret,
		}
	}

	transport := &mcp.StreamableClientTransport{
		Endpoint:   c.serverURL,
		HTTPClient: httpClient,
	}

	session, err := c.client.Connect(c.ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.session = session
	return nil
}

// Ping round-trips a ping request through the session.
func (c *MCPClient) Ping() error {
	if c.session == nil {
		return fmt.Errorf("not connected - call Connect() first")
	}
	return c.session.Ping(c.ctx, nil)
}

// ListTools retrieves every tool the server advertises.
func (c *MCPClient) ListTools() ([]Tool, error) {
	if c.session == nil {
		return nil, fmt.Errorf("not connected - call Connect() first")
	}

	result, err := c.session.ListTools(c.ctx, &mcp.ListToolsParams{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	tools := make([]Tool, len(result.Tools))
	for i, t := range result.Tools {
		var inputSchema map[string]interface{}
		if t.InputSchema != nil {
			if schema, ok := t.InputSchema.(map[string]interface{}); ok {
				inputSchema = schema
			}
		}
		tools[i] = Tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: inputSchema,
		}
	}

	return tools, nil
}

// InvokeTool calls the named tool with the given arguments.
func (c *MCPClient) InvokeTool(name string, params map[string]interface{}) (*ToolResult, error) {
	if c.session == nil {
		return nil, fmt.Errorf("not connected - call Connect() first")
	}

	result, err := c.session.CallTool(c.ctx, &mcp.CallToolParams{
		Name:      name,
		Arguments: params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call tool: %w", err)
	}

	out := &ToolResult{
		Content:  result.Content,
		IsError:  result.IsError,
		Metadata: result.Meta,
	}
	if structured, ok := result.StructuredContent.(map[string]interface{}); ok {
		out.Structured = structured
	}
	return out, nil
}

// ListResourceURIs returns the URIs of the server's listed resources.
func (c *MCPClient) ListResourceURIs() ([]string, error) {
	if c.session == nil {
		return nil, fmt.Errorf("not connected - call Connect() first")
	}

	result, err := c.session.ListResources(c.ctx, &mcp.ListResourcesParams{})
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}

	uris := make([]string, len(result.Resources))
	for i, r := range result.Resources {
		uris[i] = r.URI
	}
	return uris, nil
}

// ListPromptNames returns the names of the server's listed prompts.
func (c *MCPClient) ListPromptNames() ([]string, error) {
	if c.session == nil {
		return nil, fmt.Errorf("not connected - call Connect() first")
	}

	result, err := c.session.ListPrompts(c.ctx, &mcp.ListPromptsParams{})
	if err != nil {
		return nil, fmt.Errorf("failed to list prompts: %w", err)
	}

	names := make([]string, len(result.Prompts))
	for i, p := range result.Prompts {
		names[i] = p.Name
	}
	return names, nil
}

// Close closes the client session.
func (c *MCPClient) Close() error {
	if c.session != nil {
		return c.session.Close()
	}
	return nil
}

// GetToolContent extracts the concatenated text content from a result.
func (r *ToolResult) GetToolContent() string {
	if r == nil {
		return ""
	}

	var result string
	for _, content := range r.Content {
		if textContent, ok := content.(*mcp.TextContent); ok {
			if result != "" {
				result += "\n"
			}
			result += textContent.Text
		}
	}

	return result
}
