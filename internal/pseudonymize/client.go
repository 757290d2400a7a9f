package pseudonymize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/minvws/nvi-registration-service/internal/domain"
	"github.com/minvws/nvi-registration-service/internal/platform/referrors"
)

// TokenSource supplies a bearer token for an outbound call, implemented
// by *oauthclient.Client.
type TokenSource interface {
	FetchToken(ctx context.Context, scope, targetAudience string) (domain.AccessToken, error)
}

const prsReadScope = "prs:read"

// Client talks to the pseudonym service: it submits a blinded input and
// receives back the opaque OPRF pseudonym JWE.
type Client struct {
	httpClient *http.Client
	tokens     TokenSource
	logger     zerolog.Logger

	endpoint   string // base URL, no trailing slash
	providerID string // for the legacy register flow
	legacy     bool
}

// Option configures optional Client behavior.
type Option func(*Client)

// WithLegacyRegister enables the legacy provider-ID + SHA-256(BSN)
// registration flow, for pseudonym services that still expose it.
func WithLegacyRegister(providerID string) Option {
	return func(c *Client) {
		c.legacy = true
		c.providerID = providerID
	}
}

// New constructs a pseudonym service Client. endpoint is the service's
// base URL (e.g. "https://prs.example.com").
func New(httpClient *http.Client, tokens TokenSource, logger zerolog.Logger, endpoint string, opts ...Option) *Client {
	c := &Client{httpClient: httpClient, tokens: tokens, logger: logger, endpoint: endpoint}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type submitRequest struct {
	EncryptedPersonalID   string `json:"encryptedPersonalId"`
	RecipientOrganization string `json:"recipientOrganization"`
	RecipientScope        string `json:"recipientScope"`
}

type submitResponse struct {
	JWE string `json:"jwe"`
}

// Submit sends a blinded input to the pseudonym service and returns the
// OprfPseudonymJWE it responds with.
func (c *Client) Submit(ctx context.Context, blindedInput, recipientOrganization, recipientScope string) (domain.OprfPseudonymJWE, error) {
	tok, err := c.tokens.FetchToken(ctx, prsReadScope, c.endpoint)
	if err != nil {
		return domain.OprfPseudonymJWE{}, err
	}

	body, err := json.Marshal(submitRequest{
		EncryptedPersonalID:   blindedInput,
		RecipientOrganization: recipientOrganization,
		RecipientScope:        recipientScope,
	})
	if err != nil {
		return domain.OprfPseudonymJWE{}, referrors.Wrap(referrors.KindPseudonym, "marshaling pseudonym request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/oprf/eval", bytes.NewReader(body))
	if err != nil {
		return domain.OprfPseudonymJWE{}, referrors.Wrap(referrors.KindPseudonym, "building pseudonym request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+tok.AccessTokenValue)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.OprfPseudonymJWE{}, referrors.Wrap(referrors.KindPseudonym, "calling pseudonym service", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.OprfPseudonymJWE{}, referrors.Wrap(referrors.KindPseudonym, "reading pseudonym response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.OprfPseudonymJWE{}, referrors.New(referrors.KindPseudonym, fmt.Sprintf("pseudonym service returned status %d", resp.StatusCode))
	}

	var parsed submitResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return domain.OprfPseudonymJWE{}, referrors.Wrap(referrors.KindPseudonym, "parsing pseudonym response", err)
	}

	jwe, err := domain.NewOprfPseudonymJWE(parsed.JWE)
	if err != nil {
		return domain.OprfPseudonymJWE{}, referrors.Wrap(referrors.KindPseudonym, "pseudonym response missing jwe", err)
	}
	return jwe, nil
}

// ServerHealthy reports whether the pseudonym service's health endpoint
// returns a 2xx status.
func (c *Client) ServerHealthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("endpoint", c.endpoint).Msg("pseudonym service healthcheck failed")
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// ErrLegacyRegisterDisabled is returned by SubmitLegacy when the client
// was not constructed with WithLegacyRegister.
var ErrLegacyRegisterDisabled = fmt.Errorf("pseudonymize: legacy register flow is not enabled for this client")

type legacyRegisterRequest struct {
	ProviderID string `json:"providerId"`
	BSNHash    string `json:"bsnHash"`
}

// SubmitLegacy exchanges a BSN for a pseudonym via the legacy
// provider-ID + SHA-256(BSN) "register" endpoint (spec §4.9 open issue
// 3), used only when explicitly enabled by configuration.
func (c *Client) SubmitLegacy(ctx context.Context, bsn domain.BSN) (domain.OprfPseudonymJWE, error) {
	if !c.legacy {
		return domain.OprfPseudonymJWE{}, ErrLegacyRegisterDisabled
	}

	tok, err := c.tokens.FetchToken(ctx, prsReadScope, c.endpoint)
	if err != nil {
		return domain.OprfPseudonymJWE{}, err
	}

	body, err := json.Marshal(legacyRegisterRequest{ProviderID: c.providerID, BSNHash: bsn.Hash()})
	if err != nil {
		return domain.OprfPseudonymJWE{}, referrors.Wrap(referrors.KindPseudonym, "marshaling legacy register request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/register", bytes.NewReader(body))
	if err != nil {
		return domain.OprfPseudonymJWE{}, referrors.Wrap(referrors.KindPseudonym, "building legacy register request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+tok.AccessTokenValue)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.OprfPseudonymJWE{}, referrors.Wrap(referrors.KindPseudonym, "calling legacy register endpoint", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.OprfPseudonymJWE{}, referrors.Wrap(referrors.KindPseudonym, "reading legacy register response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.OprfPseudonymJWE{}, referrors.New(referrors.KindPseudonym, fmt.Sprintf("legacy register endpoint returned status %d", resp.StatusCode))
	}

	var parsed submitResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return domain.OprfPseudonymJWE{}, referrors.Wrap(referrors.KindPseudonym, "parsing legacy register response", err)
	}
	jwe, err := domain.NewOprfPseudonymJWE(parsed.JWE)
	if err != nil {
		return domain.OprfPseudonymJWE{}, referrors.Wrap(referrors.KindPseudonym, "legacy register response missing jwe", err)
	}
	return jwe, nil
}
