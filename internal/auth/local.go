package auth

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ArcadeAI/arcade-mcp-go/internal/logger"
)

// MockAuthorizer serves authorization from configured mock tokens for
// local development. It never talks to the network: a token is found in
// the provider's mock_tokens map or in the ARCADE_<PROVIDER>_TOKEN
// environment variable, otherwise the request stays pending with a mock
// URL pointing at this server.
type MockAuthorizer struct {
	providers map[string]MockProvider
	host      string
	port      int
}

// MockProvider is the mock token source for one provider.
type MockProvider struct {
	MockTokens map[string]string
}

// NewMockAuthorizer creates a local Authorizer. host and port shape the
// mock authorization URL returned for pending requests.
func NewMockAuthorizer(providers map[string]MockProvider, host string, port int) *MockAuthorizer {
	if providers == nil {
		providers = make(map[string]MockProvider)
	}
	return &MockAuthorizer{providers: providers, host: host, port: port}
}

// Authorize resolves the request against mock tokens.
func (m *MockAuthorizer) Authorize(ctx context.Context, req AuthorizationRequest) (*AuthorizationResponse, error) {
	providerID := req.ProviderID
	if providerID == "" {
		providerID = req.ProviderType
	}

	provider, known := m.providers[providerID]
	if !known {
		logger.Warn("No mock provider configured for %q; authorization stays pending", providerID)
		return &AuthorizationResponse{
			Status: StatusPending,
			URL:    m.mockURL(providerID),
		}, nil
	}

	token := provider.MockTokens[req.UserID]
	if token == "" {
		token = os.Getenv(envTokenKey(providerID))
	}
	if token == "" {
		return &AuthorizationResponse{
			Status: StatusPending,
			URL:    m.mockURL(providerID),
		}, nil
	}

	return &AuthorizationResponse{
		Status: StatusCompleted,
		Token:  token,
		Scopes: req.Scopes,
	}, nil
}

func (m *MockAuthorizer) mockURL(providerID string) string {
	return fmt.Sprintf("http://%s:%d/mock-auth/%s", m.host, m.port, providerID)
}

// envTokenKey builds the ARCADE_<PROVIDER>_TOKEN variable name.
func envTokenKey(providerID string) string {
	normalized := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(providerID))
	return "ARCADE_" + normalized + "_TOKEN"
}
