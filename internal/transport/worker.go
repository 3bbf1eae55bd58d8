package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"
)

// workerTool is the catalog entry shape served to engine-style callers.
type workerTool struct {
	Name               string             `json:"name"`
	FullyQualifiedName string             `json:"fully_qualified_name"`
	Description        string             `json:"description"`
	Toolkit            workerToolkit      `json:"toolkit"`
	InputSchema        *jsonschema.Schema `json:"input_schema,omitempty"`
	OutputSchema       *jsonschema.Schema `json:"output_schema,omitempty"`
	RequiresAuth       bool               `json:"requires_auth"`
	RequiredSecrets    []string           `json:"required_secrets,omitempty"`
	Deprecated         string             `json:"deprecated,omitempty"`
}

type workerToolkit struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

type invokeRequest struct {
	Tool struct {
		Toolkit string `json:"toolkit"`
		Name    string `json:"name"`
	} `json:"tool"`
	Inputs  map[string]any `json:"inputs"`
	Context struct {
		UserID string `json:"user_id"`
	} `json:"context"`
}

type invokeResponse struct {
	InvocationID string        `json:"invocation_id"`
	Success      bool          `json:"success"`
	Output       *invokeOutput `json:"output,omitempty"`
	Error        *invokeError  `json:"error,omitempty"`
	DurationMs   int64         `json:"duration_ms"`
	FinishedAt   string        `json:"finished_at"`
}

type invokeOutput struct {
	Value any `json:"value"`
}

type invokeError struct {
	Message string `json:"message"`
}

func (t *HTTP) handleWorkerHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"tool_count": t.srv.Catalog().Len(),
	})
}

// handleWorkerCatalog lists every registered tool with its requirements
// so an engine can decide what it may route here.
func (t *HTTP) handleWorkerCatalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeStatusError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	tools := t.srv.Catalog().All()
	out := make([]workerTool, 0, len(tools))
	for _, tool := range tools {
		def := tool.Definition
		entry := workerTool{
			Name:               def.Name,
			FullyQualifiedName: def.FQN(),
			Description:        def.Description,
			Toolkit:            workerToolkit{Name: def.Toolkit, Version: def.ToolkitVersion},
			InputSchema:        def.InputSchema,
			OutputSchema:       def.OutputSchema,
			RequiresAuth:       def.Requirements.Authorization != nil,
			Deprecated:         def.Deprecated,
		}
		for _, secret := range def.Requirements.Secrets {
			entry.RequiredSecrets = append(entry.RequiredSecrets, secret.Key)
		}
		out = append(out, entry)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleWorkerInvoke executes one tool outside any MCP session. Tool
// failures come back as success=false in the body, not as HTTP errors.
func (t *HTTP) handleWorkerInvoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeStatusError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !hasJSONContentType(r) {
		writeStatusError(w, http.StatusBadRequest, "Content-Type must be application/json")
		return
	}
	body, err := readBody(w, r)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			writeStatusError(w, http.StatusRequestEntityTooLarge, err.Error())
			return
		}
		writeStatusError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	var req invokeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeStatusError(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %v", err))
		return
	}
	if req.Tool.Toolkit == "" || req.Tool.Name == "" {
		writeStatusError(w, http.StatusBadRequest, "Missing tool.toolkit or tool.name")
		return
	}

	fqn := req.Tool.Toolkit + "." + req.Tool.Name
	start := time.Now()
	value, err := t.srv.InvokeTool(r.Context(), fqn, req.Inputs, req.Context.UserID)
	duration := time.Since(start)

	resp := invokeResponse{
		InvocationID: uuid.New().String(),
		Success:      err == nil,
		DurationMs:   duration.Milliseconds(),
		FinishedAt:   time.Now().UTC().Format(time.RFC3339),
	}
	if err != nil {
		resp.Error = &invokeError{Message: err.Error()}
	} else {
		resp.Output = &invokeOutput{Value: value}
	}
	writeJSON(w, http.StatusOK, resp)
}
