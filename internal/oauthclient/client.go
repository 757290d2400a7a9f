// Package oauthclient maintains an in-memory cache of OAuth access
// tokens shared by every outbound caller (pseudonym service, NVI,
// metadata source), performing client-credentials and refresh-token
// grants against one token endpoint as needed.
package oauthclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/minvws/nvi-registration-service/internal/domain"
	"github.com/minvws/nvi-registration-service/internal/platform/referrors"
)

const (
	grantClientCredentials = "client_credentials"
	grantRefreshToken      = "refresh_token"

	clientAssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"
)

// AssertionBuilder builds a client-assertion JWT for the token request.
// Implemented by *jwtassert.Builder; nil means the deployment uses a
// UZI certificate and relies on mTLS alone.
type AssertionBuilder interface {
	Build(audience, scope, targetAudience string) (string, error)
}

// Mock, when true, short-circuits every FetchToken call into a
// synthetic token and never contacts the token endpoint.
type Client struct {
	httpClient *http.Client
	logger     zerolog.Logger

	tokenURL  string
	assertion AssertionBuilder // nil for UZI-certificate deployments
	mock      bool

	mu     sync.Mutex
	tokens []domain.AccessToken
}

// New constructs a Client. httpClient should already be configured for
// mTLS and the endpoint's timeout; assertion may be nil.
func New(httpClient *http.Client, logger zerolog.Logger, tokenURL string, assertion AssertionBuilder, mock bool) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		tokenURL:   tokenURL,
		assertion:  assertion,
		mock:       mock,
	}
}

// FetchToken returns a cached token matching (scope, targetAudience),
// refreshing or minting one as needed per spec §4.1's resolution order.
func (c *Client) FetchToken(ctx context.Context, scope, targetAudience string) (domain.AccessToken, error) {
	if c.mock {
		return domain.AccessToken{
			AccessTokenValue: "mock-access-token",
			TokenType:        "Bearer",
			Scope:            scope,
			TargetAudience:   targetAudience,
			AddedAt:          time.Now(),
		}, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	c.pruneLocked(now)

	for i := len(c.tokens) - 1; i >= 0; i-- {
		tok := c.tokens[i]
		if tok.Matches(scope, targetAudience) && !tok.IsExpired(now) {
			return tok, nil
		}
	}

	for i, tok := range c.tokens {
		if tok.Matches(scope, targetAudience) && tok.CanRefresh(now) {
			refreshed, err := c.refresh(ctx, tok, targetAudience)
			if err != nil {
				return domain.AccessToken{}, err
			}
			c.tokens[i] = refreshed
			return refreshed, nil
		}
	}

	minted, err := c.clientCredentials(ctx, scope, targetAudience)
	if err != nil {
		return domain.AccessToken{}, err
	}
	c.tokens = append(c.tokens, minted)
	return minted, nil
}

func (c *Client) pruneLocked(now time.Time) {
	kept := c.tokens[:0]
	for _, tok := range c.tokens {
		if tok.IsExpired(now) && !tok.CanRefresh(now) {
			continue
		}
		kept = append(kept, tok)
	}
	c.tokens = kept
}

func (c *Client) clientCredentials(ctx context.Context, scope, targetAudience string) (domain.AccessToken, error) {
	form := url.Values{
		"grant_type": {grantClientCredentials},
		"scope":      {scope},
	}
	if targetAudience != "" {
		form.Set("target_audience", targetAudience)
	}
	return c.grant(ctx, form, scope, targetAudience)
}

func (c *Client) refresh(ctx context.Context, tok domain.AccessToken, targetAudience string) (domain.AccessToken, error) {
	form := url.Values{
		"grant_type":    {grantRefreshToken},
		"refresh_token": {tok.RefreshToken},
	}
	if targetAudience != "" {
		form.Set("target_audience", targetAudience)
	}
	return c.grant(ctx, form, tok.Scope, targetAudience)
}

func (c *Client) grant(ctx context.Context, form url.Values, scope, targetAudience string) (domain.AccessToken, error) {
	if c.assertion != nil {
		assertion, err := c.assertion.Build(c.tokenURL, scope, targetAudience)
		if err != nil {
			return domain.AccessToken{}, referrors.Wrap(referrors.KindTokenFetch, "building client assertion", err)
		}
		form.Set("client_assertion_type", clientAssertionType)
		form.Set("client_assertion", assertion)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return domain.AccessToken{}, referrors.Wrap(referrors.KindTokenFetch, "building token request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.AccessToken{}, referrors.Wrap(referrors.KindTokenFetch, "calling token endpoint", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.AccessToken{}, referrors.Wrap(referrors.KindTokenFetch, "reading token response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.AccessToken{}, referrors.New(referrors.KindTokenFetch, fmt.Sprintf("token endpoint returned status %d", resp.StatusCode))
	}

	var parsed tokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return domain.AccessToken{}, referrors.Wrap(referrors.KindTokenFetch, "parsing token response", err)
	}
	if parsed.AccessToken == "" {
		return domain.AccessToken{}, referrors.New(referrors.KindTokenFetch, "token response missing access_token")
	}

	tok := domain.AccessToken{
		AccessTokenValue: parsed.AccessToken,
		TokenType:        parsed.TokenType,
		Scope:            scope,
		RefreshToken:     parsed.RefreshToken,
		AddedAt:          time.Now(),
		TargetAudience:   targetAudience,
	}
	if seconds, err := parsed.expiresInSeconds(); err != nil {
		return domain.AccessToken{}, referrors.Wrap(referrors.KindTokenFetch, "parsing expires_in", err)
	} else if seconds > 0 {
		tok.ExpiresIn = time.Duration(seconds) * time.Second
	}
	return tok, nil
}

type tokenResponse struct {
	AccessToken  string      `json:"access_token"`
	TokenType    string      `json:"token_type"`
	Scope        string      `json:"scope"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresIn    json.Number `json:"expires_in"`
}

func (r tokenResponse) expiresInSeconds() (int64, error) {
	if r.ExpiresIn == "" {
		return 0, nil
	}
	return strconv.ParseInt(r.ExpiresIn.String(), 10, 64)
}
