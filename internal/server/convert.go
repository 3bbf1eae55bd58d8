package server

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/ArcadeAI/arcade-mcp-go/internal/catalog"
	"github.com/ArcadeAI/arcade-mcp-go/internal/protocol"
)

// ToolToProtocol renders a catalog definition the way tools/list
// exposes it: underscore wire name, the raw tool name as title, and a
// description carrying deprecation and toolkit provenance.
func ToolToProtocol(def *catalog.Definition) protocol.Tool {
	description := def.Description
	if def.Deprecated != "" {
		description = fmt.Sprintf("[DEPRECATED: %s] %s", def.Deprecated, description)
	}
	if def.Toolkit != "" && def.ToolkitVersion != "" {
		description += fmt.Sprintf(" (from %s v%s)", def.Toolkit, def.ToolkitVersion)
	}

	inputSchema := def.InputSchema
	if inputSchema == nil {
		inputSchema = &jsonschema.Schema{Type: "object"}
	}

	annotations := &protocol.ToolAnnotations{
		Title:        def.Name,
		ReadOnlyHint: def.Requirements.Empty(),
	}
	if def.Requirements.Authorization != nil {
		open := true
		annotations.OpenWorldHint = &open
	}
	if def.ReadOnly != nil {
		annotations.ReadOnlyHint = *def.ReadOnly
	}
	if def.Destructive != nil {
		annotations.DestructiveHint = def.Destructive
	}
	if def.Idempotent != nil {
		annotations.IdempotentHint = *def.Idempotent
	}
	if def.OpenWorld != nil {
		annotations.OpenWorldHint = def.OpenWorld
	}

	return protocol.Tool{
		Name:         def.WireName(),
		Title:        def.Name,
		Description:  description,
		InputSchema:  inputSchema,
		OutputSchema: def.OutputSchema,
		Annotations:  annotations,
	}
}

// buildCallResult converts a successful tool return value into a call
// result. Map values become structuredContent directly; any value
// becomes {"result": value} when the tool declares an output schema.
// Captured logs are mirrored into structuredContent and _meta.logs.
func buildCallResult(tool *catalog.MaterializedTool, value any, logs []LogEntry) *protocol.CallToolResult {
	result := &protocol.CallToolResult{Content: []protocol.Content{}}

	var structured map[string]any
	if m, ok := value.(map[string]any); ok {
		structured = make(map[string]any, len(m)+1)
		for k, v := range m {
			structured[k] = v
		}
	} else if value != nil && tool.Definition.OutputSchema != nil {
		structured = map[string]any{"result": value}
	}

	if len(logs) > 0 {
		if structured == nil {
			structured = map[string]any{"result": value}
		}
		structured["logs"] = logs
		result.Meta = map[string]any{"logs": logs}
	}

	if structured != nil {
		result.StructuredContent = structured
		result.Content = []protocol.Content{protocol.NewTextContent(encodeJSON(structured))}
		return result
	}

	result.Content = convertContent(value)
	return result
}

// convertContent renders a plain tool value as content items: nil
// yields no content, strings pass through, and composite values are
// JSON encoded.
func convertContent(value any) []protocol.Content {
	switch v := value.(type) {
	case nil:
		return []protocol.Content{}
	case string:
		return []protocol.Content{protocol.NewTextContent(v)}
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		return []protocol.Content{protocol.NewTextContent(encodeJSON(value))}
	case reflect.Pointer:
		if !rv.IsNil() && rv.Elem().Kind() == reflect.Struct {
			return []protocol.Content{protocol.NewTextContent(encodeJSON(value))}
		}
	}
	return []protocol.Content{protocol.NewTextContent(fmt.Sprint(value))}
}

func encodeJSON(value any) string {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprint(value)
	}
	return string(data)
}
