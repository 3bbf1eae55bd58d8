package testutil

import (
	"context"
	"sync"
	"testing"

	"github.com/ArcadeAI/arcade-mcp-go/internal/auth"
)

// RecordingAuthorizer is a test double for auth.Authorizer.
// It records requests and returns a configurable response.
type RecordingAuthorizer struct {
	mu sync.Mutex

	// Configurable responses
	Response *auth.AuthorizationResponse
	Err      error

	// Call tracking
	Calls []auth.AuthorizationRequest
}

// NewRecordingAuthorizer creates a recording authorizer that completes
// every request with a test token.
func NewRecordingAuthorizer(t *testing.T) *RecordingAuthorizer {
	t.Helper()
	return &RecordingAuthorizer{
		Response: &auth.AuthorizationResponse{
			Status: auth.StatusCompleted,
			Token:  "test-token",
		},
	}
}

// Authorize implements auth.Authorizer.
func (a *RecordingAuthorizer) Authorize(ctx context.Context, req auth.AuthorizationRequest) (*auth.AuthorizationResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.Calls = append(a.Calls, req)
	if a.Err != nil {
		return nil, a.Err
	}
	return a.Response, nil
}

// LastCall returns the most recent request and whether one was made.
func (a *RecordingAuthorizer) LastCall() (auth.AuthorizationRequest, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.Calls) == 0 {
		return auth.AuthorizationRequest{}, false
	}
	return a.Calls[len(a.Calls)-1], true
}
