package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/burnssa/superjective-extension/internal/config"
)

func newTestRefreshing(t *testing.T, handler http.HandlerFunc, tokens Tokens) (*Refreshing, *time.Time) {
	t.Helper()
	srv := httptest.NewTLSServer(handler)
	t.Cleanup(srv.Close)

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	r := NewRefreshing(strings.TrimPrefix(srv.URL, "https://"), "client-1", tokens, srv.Client())
	r.now = func() time.Time { return now }
	return r, &now
}

func TestStatic(t *testing.T) {
	if tok, err := Static("abc").AccessToken(context.Background()); err != nil || tok != "abc" {
		t.Errorf("Static = %q, %v", tok, err)
	}
	if _, err := Static("").AccessToken(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("Expected ErrNotAuthenticated, got %v", err)
	}
}

func TestRefreshingUsesValidToken(t *testing.T) {
	calls := 0
	r, now := newTestRefreshing(t, func(w http.ResponseWriter, _ *http.Request) {
		calls++
	}, Tokens{})
	r.tokens = Tokens{AccessToken: "live", RefreshToken: "rt", ExpiresAt: now.Add(10 * time.Minute)}

	tok, err := r.AccessToken(context.Background())
	if err != nil || tok != "live" {
		t.Fatalf("AccessToken = %q, %v", tok, err)
	}
	if calls != 0 {
		t.Errorf("Expected no refresh, got %d calls", calls)
	}
}

func TestRefreshingRefreshesNearExpiry(t *testing.T) {
	var got map[string]string
	r, now := newTestRefreshing(t, func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/oauth/token" || req.Method != http.MethodPost {
			http.NotFound(w, req)
			return
		}
		json.NewDecoder(req.Body).Decode(&got)
		json.NewEncoder(w).Encode(tokenResponse{AccessToken: "fresh", ExpiresIn: 3600})
	}, Tokens{})
	r.tokens = Tokens{AccessToken: "old", RefreshToken: "rt", ExpiresAt: now.Add(4 * time.Minute)}

	tok, err := r.AccessToken(context.Background())
	if err != nil || tok != "fresh" {
		t.Fatalf("AccessToken = %q, %v", tok, err)
	}
	if got["grant_type"] != "refresh_token" || got["refresh_token"] != "rt" || got["client_id"] != "client-1" {
		t.Errorf("Unexpected refresh request %v", got)
	}
	state := r.Tokens()
	if !state.ExpiresAt.Equal(now.Add(time.Hour)) || state.RefreshToken != "rt" {
		t.Errorf("Unexpected token state %+v", state)
	}
}

func TestRefreshingFailures(t *testing.T) {
	r, _ := newTestRefreshing(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}, Tokens{AccessToken: "old", RefreshToken: "rt"})

	if _, err := r.AccessToken(context.Background()); err == nil {
		t.Error("Expected refresh failure")
	}

	empty, _ := newTestRefreshing(t, func(http.ResponseWriter, *http.Request) {}, Tokens{})
	if _, err := empty.AccessToken(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("Expected ErrNotAuthenticated, got %v", err)
	}

	noRefresh, _ := newTestRefreshing(t, func(http.ResponseWriter, *http.Request) {}, Tokens{AccessToken: "expired"})
	if _, err := noRefresh.AccessToken(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("Expected ErrNotAuthenticated, got %v", err)
	}
}

func TestFromConfig(t *testing.T) {
	if _, ok := FromConfig(config.AuthConfig{AccessToken: "a"}).(Static); !ok {
		t.Error("Expected Static provider for access token only")
	}
	if _, ok := FromConfig(config.AuthConfig{Domain: "d", RefreshToken: "r"}).(*Refreshing); !ok {
		t.Error("Expected Refreshing provider when refresh token is set")
	}
}
