package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/burnssa/superjective-extension/internal/config"
)

// ErrNotAuthenticated is returned when no access token is available
var ErrNotAuthenticated = errors.New("not authenticated")

// refreshBuffer is how long before expiry a token is refreshed
const refreshBuffer = 5 * time.Minute

// TokenProvider supplies bearer tokens for the drafts service
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// Static always returns the same token
type Static string

func (s Static) AccessToken(context.Context) (string, error) {
	if s == "" {
		return "", ErrNotAuthenticated
	}
	return string(s), nil
}

// Tokens is the stored token state of a Refreshing provider
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Refreshing holds OAuth tokens and refreshes the access token against
// tokenURL shortly before it expires.
type Refreshing struct {
	tokenURL string
	clientID string
	client   *http.Client
	now      func() time.Time

	mu     sync.Mutex
	tokens Tokens
}

// NewRefreshing creates a provider for the identity provider at domain
func NewRefreshing(domain, clientID string, tokens Tokens, client *http.Client) *Refreshing {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Refreshing{
		tokenURL: "https://" + domain + "/oauth/token",
		clientID: clientID,
		client:   client,
		now:      time.Now,
		tokens:   tokens,
	}
}

// FromConfig picks a provider for cfg. A configured refresh token selects
// Refreshing, which refreshes on first use since the expiry is unknown.
func FromConfig(cfg config.AuthConfig) TokenProvider {
	if cfg.RefreshToken != "" {
		return NewRefreshing(cfg.Domain, cfg.ClientID, Tokens{
			AccessToken:  cfg.AccessToken,
			RefreshToken: cfg.RefreshToken,
		}, nil)
	}
	return Static(cfg.AccessToken)
}

func (r *Refreshing) AccessToken(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.tokens.AccessToken == "" && r.tokens.RefreshToken == "" {
		return "", ErrNotAuthenticated
	}
	if r.tokens.AccessToken != "" && r.now().Before(r.tokens.ExpiresAt.Add(-refreshBuffer)) {
		return r.tokens.AccessToken, nil
	}
	if err := r.refresh(ctx); err != nil {
		return "", err
	}
	return r.tokens.AccessToken, nil
}

// Tokens returns the current token state, e.g. for persisting it
func (r *Refreshing) Tokens() Tokens {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tokens
}

func (r *Refreshing) refresh(ctx context.Context) error {
	if r.tokens.RefreshToken == "" {
		return fmt.Errorf("%w: no refresh token", ErrNotAuthenticated)
	}

	body, err := json.Marshal(map[string]string{
		"grant_type":    "refresh_token",
		"client_id":     r.clientID,
		"refresh_token": r.tokens.RefreshToken,
	})
	if err != nil {
		return fmt.Errorf("failed to encode refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.tokenURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("token refresh failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		return fmt.Errorf("token refresh failed: status %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&tr); err != nil {
		return fmt.Errorf("failed to decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return fmt.Errorf("token refresh failed: empty access token")
	}

	r.tokens.AccessToken = tr.AccessToken
	r.tokens.ExpiresAt = r.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	if tr.RefreshToken != "" {
		r.tokens.RefreshToken = tr.RefreshToken
	}
	return nil
}
