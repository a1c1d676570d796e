package ratelimit

import (
	"testing"
	"time"

	"github.com/burnssa/superjective-extension/internal/config"
)

func TestLimiterAllow(t *testing.T) {
	l := New(config.RateLimitConfig{Enabled: true, RequestsPerMin: 60, Burst: 3})
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !l.Allow("10.0.0.1") {
			t.Fatalf("Request %d should be allowed within burst", i+1)
		}
	}
	if l.Allow("10.0.0.1") {
		t.Error("Request beyond burst should be rejected")
	}
	if !l.Allow("10.0.0.2") {
		t.Error("Other clients have their own bucket")
	}

	now = now.Add(time.Second)
	if !l.Allow("10.0.0.1") {
		t.Error("One token should refill after a second at 60/min")
	}
}

func TestLimiterDisabled(t *testing.T) {
	l := New(config.RateLimitConfig{Enabled: false, RequestsPerMin: 1, Burst: 1})
	for i := 0; i < 10; i++ {
		if !l.Allow("client") {
			t.Fatal("Disabled limiter must allow everything")
		}
	}
}

func TestLimiterTokensAndCleanup(t *testing.T) {
	l := New(config.RateLimitConfig{Enabled: true, RequestsPerMin: 120})
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }

	if got := l.Tokens("new"); got != 120 {
		t.Errorf("Expected burst to default to requests per minute, got %v", got)
	}

	l.Allow("a")
	if got := l.Tokens("a"); got != 119 {
		t.Errorf("Expected 119 tokens left, got %v", got)
	}

	now = now.Add(2 * time.Hour)
	l.Allow("b")
	if removed := l.Cleanup(); removed != 1 {
		t.Errorf("Expected 1 idle bucket removed, got %d", removed)
	}
	if _, ok := l.clients["b"]; !ok {
		t.Error("Active bucket must survive cleanup")
	}
}

func TestLimiterUpdate(t *testing.T) {
	l := New(config.RateLimitConfig{Enabled: true, RequestsPerMin: 60, Burst: 1})
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }

	if !l.Allow("a") || l.Allow("a") {
		t.Fatal("Expected a burst of one request")
	}

	l.Update(config.RateLimitConfig{Enabled: true, RequestsPerMin: 60, Burst: 3})
	for i := 0; i < 3; i++ {
		if !l.Allow("a") {
			t.Fatalf("Request %d should be allowed after raising the burst", i)
		}
	}

	l.Update(config.RateLimitConfig{Enabled: false})
	if !l.Allow("a") {
		t.Error("Disabled limiter must allow everything")
	}
}
