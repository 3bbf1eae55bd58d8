package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMockAuthorizer(t *testing.T) {
	providers := map[string]MockProvider{
		"github": {MockTokens: map[string]string{"dev@example.com": "gho_mock"}},
		"slack":  {MockTokens: map[string]string{}},
	}
	m := NewMockAuthorizer(providers, "127.0.0.1", 7777)

	t.Run("configured token completes", func(t *testing.T) {
		resp, err := m.Authorize(context.Background(), AuthorizationRequest{
			ProviderID: "github",
			UserID:     "dev@example.com",
			Scopes:     []string{"repo"},
		})
		if err != nil {
			t.Fatalf("Authorize() error = %v", err)
		}
		if resp.Status != StatusCompleted {
			t.Errorf("Status = %q, want completed", resp.Status)
		}
		if resp.Token != "gho_mock" {
			t.Errorf("Token = %q, want gho_mock", resp.Token)
		}
	})

	t.Run("env fallback token", func(t *testing.T) {
		t.Setenv("ARCADE_SLACK_TOKEN", "xoxb-env")
		resp, err := m.Authorize(context.Background(), AuthorizationRequest{
			ProviderID: "slack",
			UserID:     "someone@example.com",
		})
		if err != nil {
			t.Fatalf("Authorize() error = %v", err)
		}
		if resp.Status != StatusCompleted || resp.Token != "xoxb-env" {
			t.Errorf("got status %q token %q, want completed xoxb-env", resp.Status, resp.Token)
		}
	})

	t.Run("unknown provider pends with mock URL", func(t *testing.T) {
		resp, err := m.Authorize(context.Background(), AuthorizationRequest{
			ProviderID: "notion",
			UserID:     "dev@example.com",
		})
		if err != nil {
			t.Fatalf("Authorize() error = %v", err)
		}
		if resp.Status != StatusPending {
			t.Errorf("Status = %q, want pending", resp.Status)
		}
		want := "http://127.0.0.1:7777/mock-auth/notion"
		if resp.URL != want {
			t.Errorf("URL = %q, want %q", resp.URL, want)
		}
	})

	t.Run("known provider without token pends", func(t *testing.T) {
		resp, err := m.Authorize(context.Background(), AuthorizationRequest{
			ProviderID: "github",
			UserID:     "stranger@example.com",
		})
		if err != nil {
			t.Fatalf("Authorize() error = %v", err)
		}
		if resp.Status != StatusPending {
			t.Errorf("Status = %q, want pending", resp.Status)
		}
	})
}

func TestClientAuthorize(t *testing.T) {
	var gotAuth string
	var gotBody engineAuthRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/auth/authorize" {
			t.Errorf("path = %q, want /v1/auth/authorize", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "completed",
			"context": map[string]any{
				"token": "tok-from-engine",
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "api-key-1")
	resp, err := c.Authorize(context.Background(), AuthorizationRequest{
		ProviderID: "github",
		UserID:     "dev@example.com",
		Scopes:     []string{"repo", "gist"},
	})
	if err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}

	if gotAuth != "Bearer api-key-1" {
		t.Errorf("Authorization header = %q, want Bearer api-key-1", gotAuth)
	}
	if gotBody.UserID != "dev@example.com" {
		t.Errorf("user_id = %q, want dev@example.com", gotBody.UserID)
	}
	if gotBody.AuthRequirement.OAuth2 == nil || len(gotBody.AuthRequirement.OAuth2.Scopes) != 2 {
		t.Errorf("oauth2 scopes = %+v, want two scopes", gotBody.AuthRequirement.OAuth2)
	}
	if resp.Status != StatusCompleted || resp.Token != "tok-from-engine" {
		t.Errorf("got status %q token %q, want completed tok-from-engine", resp.Status, resp.Token)
	}
}

func TestClientAuthorizeErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "wrong")
	if _, err := c.Authorize(context.Background(), AuthorizationRequest{UserID: "u"}); err == nil {
		t.Error("Authorize() error = nil, want error for 401")
	}
}

func TestEnvTokenKey(t *testing.T) {
	tests := []struct {
		provider string
		want     string
	}{
		{"github", "ARCADE_GITHUB_TOKEN"},
		{"google-drive", "ARCADE_GOOGLE_DRIVE_TOKEN"},
		{"x.com", "ARCADE_X_COM_TOKEN"},
	}
	for _, tt := range tests {
		if got := envTokenKey(tt.provider); got != tt.want {
			t.Errorf("envTokenKey(%q) = %q, want %q", tt.provider, got, tt.want)
		}
	}
}
