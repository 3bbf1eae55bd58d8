// Package catalog holds tool definitions and their handlers. Tools are
// registered under a fully qualified name (toolkit.name) and looked up by
// either the dotted or the underscore form clients send over the wire.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
)

// Handler executes a tool call. Arguments arrive as raw JSON that has
// already passed schema validation.
type Handler func(ctx context.Context, tctx *ToolContext, args json.RawMessage) (any, error)

// Definition describes a tool independent of its handler.
type Definition struct {
	Name           string
	Toolkit        string
	ToolkitVersion string
	Description    string
	Deprecated     string // deprecation message, empty when current
	InputSchema    *jsonschema.Schema
	OutputSchema   *jsonschema.Schema
	Requirements   Requirements

	// Annotation overrides. Nil means derive from requirements.
	ReadOnly    *bool
	Destructive *bool
	Idempotent  *bool
	OpenWorld   *bool
}

// Requirements lists what a tool needs before it can run.
type Requirements struct {
	Authorization *AuthRequirement
	Secrets       []SecretRequirement
	Metadata      []MetadataRequirement
}

// AuthRequirement names the OAuth provider and scopes a tool needs.
type AuthRequirement struct {
	ProviderID   string
	ProviderType string
	Scopes       []string
}

// SecretRequirement names one secret key a tool reads.
type SecretRequirement struct {
	Key string
}

// MetadataRequirement names one metadata key a tool reads.
type MetadataRequirement struct {
	Key string
}

// Empty reports whether the tool needs anything beyond plain arguments.
// Tools with no requirements are flagged read-only by default.
func (r Requirements) Empty() bool {
	return r.Authorization == nil && len(r.Secrets) == 0 && len(r.Metadata) == 0
}

// FQN returns the fully qualified tool name.
func (d *Definition) FQN() string {
	if d.Toolkit == "" {
		return d.Name
	}
	return d.Toolkit + "." + d.Name
}

// WireName returns the name exposed over MCP, where dots become
// underscores.
func (d *Definition) WireName() string {
	return strings.ReplaceAll(d.FQN(), ".", "_")
}

// MaterializedTool pairs a definition with its handler.
type MaterializedTool struct {
	Definition Definition
	Handler    Handler
}

// Catalog stores materialized tools in registration order.
type Catalog struct {
	mu    sync.RWMutex
	tools map[string]*MaterializedTool // keyed by FQN
	wire  map[string]string            // wire name -> FQN
	order []string
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{
		tools: make(map[string]*MaterializedTool),
		wire:  make(map[string]string),
		order: make([]string, 0),
	}
}

// Add inserts or replaces a tool. Replacing keeps the original position
// in the listing order.
func (c *Catalog) Add(tool *MaterializedTool) error {
	if tool == nil || tool.Definition.Name == "" {
		return fmt.Errorf("tool definition requires a name")
	}
	if tool.Handler == nil {
		return fmt.Errorf("tool %s registered without a handler", tool.Definition.FQN())
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	fqn := tool.Definition.FQN()
	if _, exists := c.tools[fqn]; !exists {
		c.order = append(c.order, fqn)
	}
	c.tools[fqn] = tool
	c.wire[tool.Definition.WireName()] = fqn
	return nil
}

// Remove deletes a tool by FQN.
func (c *Catalog) Remove(fqn string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	tool, ok := c.tools[fqn]
	if !ok {
		return false
	}
	delete(c.tools, fqn)
	delete(c.wire, tool.Definition.WireName())
	for i, name := range c.order {
		if name == fqn {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return true
}

// Get returns a tool by exact FQN.
func (c *Catalog) Get(fqn string) (*MaterializedTool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tool, ok := c.tools[fqn]
	return tool, ok
}

// Resolve returns a tool by either its FQN (toolkit.name) or its wire
// name (toolkit_name).
func (c *Catalog) Resolve(name string) (*MaterializedTool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if tool, ok := c.tools[name]; ok {
		return tool, true
	}
	if fqn, ok := c.wire[name]; ok {
		return c.tools[fqn], true
	}
	return nil, false
}

// All returns tools in registration order.
func (c *Catalog) All() []*MaterializedTool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tools := make([]*MaterializedTool, 0, len(c.order))
	for _, fqn := range c.order {
		if tool, ok := c.tools[fqn]; ok {
			tools = append(tools, tool)
		}
	}
	return tools
}

// Len returns the number of registered tools.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tools)
}
