// Package validation checks wire-level inputs: identifiers arriving over
// HTTP and tool arguments against their JSON schemas.
package validation

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"

	schemagen "github.com/google/jsonschema-go/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

	// toolNameRegex matches toolkit.name and toolkit_name forms.
	toolNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_][a-zA-Z0-9_.-]*$`)
)

// ValidateUUID checks that the string is a standard UUID.
func ValidateUUID(id string) error {
	if id == "" {
		return fmt.Errorf("ID cannot be empty")
	}
	if !uuidRegex.MatchString(id) {
		return fmt.Errorf("invalid UUID format: %s", id)
	}
	return nil
}

// ValidateSessionID validates an MCP session ID sent by a client.
func ValidateSessionID(id string) error {
	if id == "" {
		return fmt.Errorf("session ID cannot be empty")
	}
	return ValidateUUID(id)
}

// ValidateToolName validates a tool name received over the wire.
func ValidateToolName(name string) error {
	if name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if len(name) > 256 {
		return fmt.Errorf("tool name too long: %d chars", len(name))
	}
	if !toolNameRegex.MatchString(name) {
		return fmt.Errorf("invalid tool name: %s", name)
	}
	return nil
}

// ValidateResourceURI performs a light sanity check on a resource URI.
func ValidateResourceURI(uri string) error {
	if uri == "" {
		return fmt.Errorf("resource URI cannot be empty")
	}
	if strings.ContainsAny(uri, " \t\n") {
		return fmt.Errorf("resource URI contains whitespace: %s", uri)
	}
	return nil
}

var schemaCache sync.Map

// ValidateArguments checks tool call arguments against the tool's input
// schema. Compiled schemas are cached keyed by their JSON serialization.
func ValidateArguments(inputSchema *schemagen.Schema, args map[string]any) error {
	if inputSchema == nil {
		return nil
	}

	raw, err := json.Marshal(inputSchema)
	if err != nil {
		return fmt.Errorf("encode input schema: %w", err)
	}

	compiled, err := compileSchema(raw)
	if err != nil {
		return fmt.Errorf("compile input schema: %w", err)
	}

	// Round-trip through JSON so the validator sees plain decoded values.
	payload, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode arguments: %w", err)
	}
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}

	if err := compiled.Validate(decoded); err != nil {
		return fmt.Errorf("arguments invalid: %w", err)
	}
	return nil
}

func compileSchema(schema []byte) (*jsonschema.Schema, error) {
	key := string(schema)
	if cached, ok := schemaCache.Load(key); ok {
		if compiled, ok := cached.(*jsonschema.Schema); ok {
			return compiled, nil
		}
	}

	compiled, err := jsonschema.CompileString("tool.schema.json", key)
	if err != nil {
		return nil, err
	}
	schemaCache.Store(key, compiled)
	return compiled, nil
}
