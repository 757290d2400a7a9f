package pseudonymize

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/minvws/nvi-registration-service/internal/domain"
)

type stubTokenSource struct {
	token domain.AccessToken
	err   error
}

func (s stubTokenSource) FetchToken(ctx context.Context, scope, targetAudience string) (domain.AccessToken, error) {
	return s.token, s.err
}

func TestSubmitReturnsJWEOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oprf/eval" {
			t.Errorf("path = %q, want /oprf/eval", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("Authorization = %q, want Bearer tok-1", got)
		}
		fmt.Fprint(w, `{"jwe":"some_pseudonym"}`)
	}))
	t.Cleanup(srv.Close)

	tokens := stubTokenSource{token: domain.AccessToken{AccessTokenValue: "tok-1", AddedAt: time.Now()}}
	c := New(srv.Client(), tokens, zerolog.Nop(), srv.URL)

	jwe, err := c.Submit(context.Background(), "blinded-input", "ura:00012345", "nationale-verwijsindex")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if jwe.String() != "some_pseudonym" {
		t.Errorf("jwe = %q, want some_pseudonym", jwe.String())
	}
}

func TestSubmitFailsOnMissingJWE(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	t.Cleanup(srv.Close)

	tokens := stubTokenSource{token: domain.AccessToken{AccessTokenValue: "tok-1"}}
	c := New(srv.Client(), tokens, zerolog.Nop(), srv.URL)

	if _, err := c.Submit(context.Background(), "blinded-input", "ura:00012345", "nationale-verwijsindex"); err == nil {
		t.Fatalf("expected error for missing jwe")
	}
}

func TestSubmitFailsOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	tokens := stubTokenSource{token: domain.AccessToken{AccessTokenValue: "tok-1"}}
	c := New(srv.Client(), tokens, zerolog.Nop(), srv.URL)

	if _, err := c.Submit(context.Background(), "blinded-input", "ura:00012345", "nationale-verwijsindex"); err == nil {
		t.Fatalf("expected error for non-2xx response")
	}
}

func TestServerHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("path = %q, want /health", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	c := New(srv.Client(), stubTokenSource{}, zerolog.Nop(), srv.URL)
	if !c.ServerHealthy(context.Background()) {
		t.Errorf("expected healthy")
	}
}

func TestSubmitLegacyDisabledByDefault(t *testing.T) {
	c := New(http.DefaultClient, stubTokenSource{}, zerolog.Nop(), "https://prs.example.com")
	bsn, _ := domain.NewBSN("200060429")
	if _, err := c.SubmitLegacy(context.Background(), bsn); err != ErrLegacyRegisterDisabled {
		t.Errorf("SubmitLegacy error = %v, want ErrLegacyRegisterDisabled", err)
	}
}
