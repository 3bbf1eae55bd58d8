package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Authorization statuses reported by an Authorizer.
const (
	StatusCompleted = "completed"
	StatusPending   = "pending"
	StatusFailed    = "failed"
)

// AuthorizationRequest asks for an OAuth token for one user and provider.
type AuthorizationRequest struct {
	ProviderID   string
	ProviderType string
	UserID       string
	Scopes       []string
}

// AuthorizationResponse is the outcome of an authorization attempt. A
// pending response carries the URL the user must visit; a completed one
// carries the token.
type AuthorizationResponse struct {
	Status string
	URL    string
	Token  string
	Scopes []string
}

// Authorizer resolves tool authorization requirements into tokens.
type Authorizer interface {
	Authorize(ctx context.Context, req AuthorizationRequest) (*AuthorizationResponse, error)
}

// Client is the HTTP Authorizer backed by the Arcade engine API. It is
// configured from ARCADE_API_URL and ARCADE_API_KEY.
type Client struct {
	apiURL string
	apiKey string
	http   *http.Client
}

// NewClient creates an engine-backed Authorizer.
func NewClient(apiURL, apiKey string) *Client {
	return &Client{
		apiURL: strings.TrimRight(apiURL, "/"),
		apiKey: apiKey,
		http:   &http.Client{Timeout: 30 * time.Second},
	}
}

type engineAuthRequest struct {
	UserID          string                `json:"user_id"`
	AuthRequirement engineAuthRequirement `json:"auth_requirement"`
}

type engineAuthRequirement struct {
	ProviderID   string        `json:"provider_id,omitempty"`
	ProviderType string        `json:"provider_type,omitempty"`
	OAuth2       *engineOAuth2 `json:"oauth2,omitempty"`
}

type engineOAuth2 struct {
	Scopes []string `json:"scopes,omitempty"`
}

type engineAuthResponse struct {
	Status  string `json:"status"`
	URL     string `json:"url"`
	Context struct {
		Token string `json:"token"`
	} `json:"context"`
	Scopes []string `json:"scopes"`
}

// Authorize posts the requirement to the engine and maps its answer.
func (c *Client) Authorize(ctx context.Context, req AuthorizationRequest) (*AuthorizationResponse, error) {
	body := engineAuthRequest{
		UserID: req.UserID,
		AuthRequirement: engineAuthRequirement{
			ProviderID:   req.ProviderID,
			ProviderType: req.ProviderType,
		},
	}
	if len(req.Scopes) > 0 {
		body.AuthRequirement.OAuth2 = &engineOAuth2{Scopes: req.Scopes}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding authorization request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/v1/auth/authorize", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building authorization request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling authorizer: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading authorizer response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("authorizer returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var engineResp engineAuthResponse
	if err := json.Unmarshal(data, &engineResp); err != nil {
		return nil, fmt.Errorf("parsing authorizer response: %w", err)
	}

	return &AuthorizationResponse{
		Status: engineResp.Status,
		URL:    engineResp.URL,
		Token:  engineResp.Context.Token,
		Scopes: engineResp.Scopes,
	}, nil
}
