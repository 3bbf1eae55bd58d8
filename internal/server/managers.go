package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/ArcadeAI/arcade-mcp-go/internal/catalog"
	"github.com/ArcadeAI/arcade-mcp-go/internal/protocol"
)

// registry is the shared storage behind the component managers.
// Managers are passive: no internal locks and no lifecycle; the server
// serializes access around dispatch.
type registry[T any] struct {
	kind     string
	items    map[string]T
	order    []string
	equal    func(a, b T) bool
	onUpdate func(key string)
}

func newRegistry[T any](kind string, equal func(a, b T) bool, onUpdate func(key string)) *registry[T] {
	return &registry[T]{
		kind:     kind,
		items:    make(map[string]T),
		equal:    equal,
		onUpdate: onUpdate,
	}
}

// add registers an item. When the key already exists and the incoming
// item equals the stored one the call is a no-op; any effective change
// to the set fires the update hook.
func (r *registry[T]) add(key string, item T) {
	if existing, ok := r.items[key]; ok {
		if r.equal != nil && r.equal(existing, item) {
			return
		}
		r.items[key] = item
		r.fireUpdate(key)
		return
	}
	r.items[key] = item
	r.order = append(r.order, key)
	r.fireUpdate(key)
}

func (r *registry[T]) remove(key string) (T, error) {
	item, ok := r.items[key]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s %q", ErrNotFound, r.kind, key)
	}
	delete(r.items, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.fireUpdate(key)
	return item, nil
}

func (r *registry[T]) fireUpdate(key string) {
	if r.onUpdate != nil {
		r.onUpdate(key)
	}
}

func (r *registry[T]) get(key string) (T, bool) {
	item, ok := r.items[key]
	return item, ok
}

func (r *registry[T]) has(key string) bool {
	_, ok := r.items[key]
	return ok
}

// list returns items in registration order.
func (r *registry[T]) list() []T {
	out := make([]T, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.items[key])
	}
	return out
}

func (r *registry[T]) clear() {
	r.items = make(map[string]T)
	r.order = nil
}

func (r *registry[T]) len() int {
	return len(r.items)
}

// ToolManager tracks the tools exposed over MCP, keyed by fully
// qualified name. It is seeded from the catalog and kept in sync on
// add and remove.
type ToolManager struct {
	catalog *catalog.Catalog
	reg     *registry[*catalog.MaterializedTool]
}

// NewToolManager seeds a manager from the catalog. onUpdate fires
// whenever the tool set changes.
func NewToolManager(cat *catalog.Catalog, onUpdate func(key string)) *ToolManager {
	m := &ToolManager{
		catalog: cat,
		reg:     newRegistry("tool", toolsEqual, onUpdate),
	}
	for _, tool := range cat.All() {
		m.reg.add(tool.Definition.FQN(), tool)
	}
	return m
}

// toolsEqual compares whole definitions so re-registering an unchanged
// tool does not fire list_changed.
func toolsEqual(a, b *catalog.MaterializedTool) bool {
	return reflect.DeepEqual(a.Definition, b.Definition)
}

// Add registers a tool with both the manager and the catalog.
func (m *ToolManager) Add(tool *catalog.MaterializedTool) error {
	if err := m.catalog.Add(tool); err != nil {
		return err
	}
	m.reg.add(tool.Definition.FQN(), tool)
	return nil
}

// Remove drops a tool by fully qualified name.
func (m *ToolManager) Remove(fqn string) (*catalog.MaterializedTool, error) {
	tool, err := m.reg.remove(fqn)
	if err != nil {
		return nil, fmt.Errorf("%w: tool %q not found", ErrNotFound, fqn)
	}
	m.catalog.Remove(fqn)
	return tool, nil
}

// Get looks up a tool by fully qualified name.
func (m *ToolManager) Get(fqn string) (*catalog.MaterializedTool, error) {
	tool, ok := m.reg.get(fqn)
	if !ok {
		return nil, fmt.Errorf("%w: tool %q not found", ErrNotFound, fqn)
	}
	return tool, nil
}

// List returns tools in registration order.
func (m *ToolManager) List() []*catalog.MaterializedTool {
	return m.reg.list()
}

// Len returns the number of managed tools.
func (m *ToolManager) Len() int {
	return m.reg.len()
}

// ResourceHandler produces the contents of a resource on demand. The
// result may be a string (one text contents), a map (contents fields),
// a []protocol.ResourceContents, or anything else, which is rendered
// as text.
type ResourceHandler func(ctx context.Context, uri string) (any, error)

// ResourceManager tracks resources by URI and resource templates by
// URI template, with optional per-URI handlers.
type ResourceManager struct {
	resources *registry[protocol.Resource]
	templates *registry[protocol.ResourceTemplate]
	handlers  map[string]ResourceHandler
}

// NewResourceManager creates an empty resource manager. onUpdate fires
// whenever the resource or template set changes.
func NewResourceManager(onUpdate func(key string)) *ResourceManager {
	equalRes := func(a, b protocol.Resource) bool { return a == b }
	equalTpl := func(a, b protocol.ResourceTemplate) bool { return a == b }
	return &ResourceManager{
		resources: newRegistry("resource", equalRes, onUpdate),
		templates: newRegistry("resource template", equalTpl, onUpdate),
		handlers:  make(map[string]ResourceHandler),
	}
}

// AddResource registers a resource with an optional content handler.
func (m *ResourceManager) AddResource(res protocol.Resource, handler ResourceHandler) {
	m.resources.add(res.URI, res)
	if handler != nil {
		m.handlers[res.URI] = handler
	}
}

// RemoveResource drops a resource and its handler.
func (m *ResourceManager) RemoveResource(uri string) (protocol.Resource, error) {
	res, err := m.resources.remove(uri)
	if err != nil {
		return protocol.Resource{}, fmt.Errorf("%w: resource %q not found", ErrResourceNotFound, uri)
	}
	delete(m.handlers, uri)
	return res, nil
}

// ListResources returns resources in registration order.
func (m *ResourceManager) ListResources() []protocol.Resource {
	return m.resources.list()
}

// AddTemplate registers a resource template.
func (m *ResourceManager) AddTemplate(tpl protocol.ResourceTemplate) {
	m.templates.add(tpl.URITemplate, tpl)
}

// RemoveTemplate drops a resource template.
func (m *ResourceManager) RemoveTemplate(uriTemplate string) (protocol.ResourceTemplate, error) {
	tpl, err := m.templates.remove(uriTemplate)
	if err != nil {
		return protocol.ResourceTemplate{}, fmt.Errorf("%w: resource template %q not found", ErrResourceNotFound, uriTemplate)
	}
	return tpl, nil
}

// ListTemplates returns templates in registration order.
func (m *ResourceManager) ListTemplates() []protocol.ResourceTemplate {
	return m.templates.list()
}

// ReadResource resolves the contents of a resource. A handler takes
// precedence over the static entry; static resources read as an empty
// text placeholder.
func (m *ResourceManager) ReadResource(ctx context.Context, uri string) ([]protocol.ResourceContents, error) {
	if handler, ok := m.handlers[uri]; ok {
		result, err := handler(ctx, uri)
		if err != nil {
			return nil, fmt.Errorf("%w: reading %q: %v", ErrResource, uri, err)
		}
		return convertResourceResult(uri, result)
	}

	if !m.resources.has(uri) {
		return nil, fmt.Errorf("%w: resource %q not found", ErrResourceNotFound, uri)
	}
	return []protocol.ResourceContents{{URI: uri, Text: ""}}, nil
}

func convertResourceResult(uri string, result any) ([]protocol.ResourceContents, error) {
	switch v := result.(type) {
	case string:
		return []protocol.ResourceContents{{URI: uri, Text: v}}, nil
	case protocol.ResourceContents:
		if v.URI == "" {
			v.URI = uri
		}
		return []protocol.ResourceContents{v}, nil
	case []protocol.ResourceContents:
		return v, nil
	case map[string]any:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: encoding contents of %q: %v", ErrResource, uri, err)
		}
		var contents protocol.ResourceContents
		if err := json.Unmarshal(data, &contents); err != nil {
			return nil, fmt.Errorf("%w: decoding contents of %q: %v", ErrResource, uri, err)
		}
		if contents.URI == "" {
			contents.URI = uri
		}
		return []protocol.ResourceContents{contents}, nil
	default:
		return []protocol.ResourceContents{{URI: uri, Text: fmt.Sprintf("%v", v)}}, nil
	}
}

// PromptHandlerFunc produces the messages for a prompt. A nil handler
// falls back to the prompt description as a single user message.
type PromptHandlerFunc func(ctx context.Context, args map[string]string) ([]protocol.PromptMessage, error)

// PromptHandler pairs a prompt definition with its message generator.
type PromptHandler struct {
	Prompt  protocol.Prompt
	Handler PromptHandlerFunc
}

// Messages validates required arguments and renders the prompt.
func (h *PromptHandler) Messages(ctx context.Context, args map[string]string) ([]protocol.PromptMessage, error) {
	if args == nil {
		args = map[string]string{}
	}
	for _, arg := range h.Prompt.Arguments {
		if arg.Required {
			if _, ok := args[arg.Name]; !ok {
				return nil, fmt.Errorf("%w: required argument %q not provided", ErrPrompt, arg.Name)
			}
		}
	}

	if h.Handler == nil {
		text := h.Prompt.Description
		if text == "" {
			text = "Prompt: " + h.Prompt.Name
		}
		return []protocol.PromptMessage{{
			Role:    "user",
			Content: protocol.NewTextContent(text),
		}}, nil
	}

	messages, err := h.Handler(ctx, args)
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// PromptManager tracks prompts by name.
type PromptManager struct {
	reg *registry[*PromptHandler]
}

// NewPromptManager creates an empty prompt manager. onUpdate fires
// whenever the prompt set changes.
func NewPromptManager(onUpdate func(key string)) *PromptManager {
	equal := func(a, b *PromptHandler) bool {
		return reflect.DeepEqual(a.Prompt, b.Prompt)
	}
	return &PromptManager{reg: newRegistry("prompt", equal, onUpdate)}
}

// AddPrompt registers a prompt with an optional message handler.
func (m *PromptManager) AddPrompt(prompt protocol.Prompt, handler PromptHandlerFunc) {
	m.reg.add(prompt.Name, &PromptHandler{Prompt: prompt, Handler: handler})
}

// RemovePrompt drops a prompt by name.
func (m *PromptManager) RemovePrompt(name string) (protocol.Prompt, error) {
	h, err := m.reg.remove(name)
	if err != nil {
		return protocol.Prompt{}, fmt.Errorf("%w: prompt %q not found", ErrNotFound, name)
	}
	return h.Prompt, nil
}

// ListPrompts returns prompt definitions in registration order.
func (m *PromptManager) ListPrompts() []protocol.Prompt {
	handlers := m.reg.list()
	prompts := make([]protocol.Prompt, 0, len(handlers))
	for _, h := range handlers {
		prompts = append(prompts, h.Prompt)
	}
	return prompts
}

// GetPrompt renders a prompt with the given arguments.
func (m *PromptManager) GetPrompt(ctx context.Context, name string, args map[string]string) (*protocol.GetPromptResult, error) {
	h, ok := m.reg.get(name)
	if !ok {
		return nil, fmt.Errorf("%w: prompt %q not found", ErrNotFound, name)
	}

	messages, err := h.Messages(ctx, args)
	if err != nil {
		if errors.Is(err, ErrPrompt) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: generating prompt %q: %v", ErrPrompt, name, err)
	}

	return &protocol.GetPromptResult{
		Description: h.Prompt.Description,
		Messages:    messages,
	}, nil
}
