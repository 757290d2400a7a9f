package domain

import (
	"testing"
	"time"
)

func TestAccessTokenIsExpired(t *testing.T) {
	now := time.Now()
	tok := AccessToken{AddedAt: now.Add(-10 * time.Minute)}
	if !tok.IsExpired(now) {
		t.Errorf("token added 10 minutes ago with default TTL should be expired (default ttl - skew = 570s)")
	}

	fresh := AccessToken{AddedAt: now.Add(-1 * time.Minute)}
	if fresh.IsExpired(now) {
		t.Errorf("freshly added token should not be expired")
	}
}

func TestAccessTokenCanRefresh(t *testing.T) {
	now := time.Now()
	tok := AccessToken{AddedAt: now.Add(-2 * time.Minute), RefreshToken: "r1"}
	if !tok.CanRefresh(now) {
		t.Errorf("token with refresh token within refresh TTL should be refreshable")
	}

	expired := AccessToken{AddedAt: now.Add(-2 * time.Hour), RefreshToken: "r1"}
	if expired.CanRefresh(now) {
		t.Errorf("token whose refresh token has exceeded refresh TTL should not be refreshable")
	}

	noRefresh := AccessToken{AddedAt: now}
	if noRefresh.CanRefresh(now) {
		t.Errorf("token without a refresh token should never be refreshable")
	}
}

func TestAccessTokenMatches(t *testing.T) {
	tok := AccessToken{Scope: "epd:read epd:write", TargetAudience: "https://nvi.example.com"}

	tests := []struct {
		name     string
		scope    string
		audience string
		want     bool
	}{
		{name: "subset scope, matching audience", scope: "epd:read", audience: "https://nvi.example.com", want: true},
		{name: "full scope, matching audience", scope: "epd:read epd:write", audience: "https://nvi.example.com", want: true},
		{name: "missing scope", scope: "epd:delete", audience: "https://nvi.example.com", want: false},
		{name: "wrong audience", scope: "epd:read", audience: "https://other.example.com", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tok.Matches(tt.scope, tt.audience); got != tt.want {
				t.Errorf("Matches(%q, %q) = %v, want %v", tt.scope, tt.audience, got, tt.want)
			}
		})
	}
}
