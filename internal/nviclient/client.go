// Package nviclient talks to the National Referral Index's FHIR-style
// NVIDataReference endpoint: existence checks and referral submission
// (spec §4.5).
package nviclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/minvws/nvi-registration-service/internal/domain"
	"github.com/minvws/nvi-registration-service/internal/platform/fhirshared"
	"github.com/minvws/nvi-registration-service/internal/platform/referrors"
)

const (
	readScope  = "epd:read"
	writeScope = "epd:write"
)

// TokenSource supplies a bearer token for an outbound call, implemented
// by *oauthclient.Client.
type TokenSource interface {
	FetchToken(ctx context.Context, scope, targetAudience string) (domain.AccessToken, error)
}

// FHIRSystems carries the deployment-configured system URIs used when
// mapping a CreateReferralRequest onto an NVIDataReference resource
// (spec §4.5.1, config group nvi_fhir_systems).
type FHIRSystems struct {
	PseudonymSystem        string
	SourceSystem           string
	OrganizationTypeSystem string
	CareContextSystem      string
}

// Client is the NVI FHIR client.
type Client struct {
	httpClient *http.Client
	tokens     TokenSource
	logger     zerolog.Logger
	endpoint   string
	systems    FHIRSystems
}

func New(httpClient *http.Client, tokens TokenSource, logger zerolog.Logger, endpoint string, systems FHIRSystems) *Client {
	return &Client{httpClient: httpClient, tokens: tokens, logger: logger, endpoint: endpoint, systems: systems}
}

// IsReferralRegistered reports whether a referral matching query
// already exists in the NVI.
func (c *Client) IsReferralRegistered(ctx context.Context, query domain.ReferralQuery) (bool, error) {
	tok, err := c.tokens.FetchToken(ctx, readScope, c.endpoint)
	if err != nil {
		return false, err
	}

	params := url.Values{}
	params.Set("source", query.UraNumber.String())
	if query.DataDomain != "" {
		params.Set("careContext", query.DataDomain.String())
	}
	if query.OprfJWE != nil {
		params.Set("pseudonym", query.OprfJWE.String())
	}
	if query.BlindFactor != nil {
		params.Set("oprfKey", *query.BlindFactor)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/NVIDataReference?"+params.Encode(), nil)
	if err != nil {
		return false, referrors.Wrap(referrors.KindNvi, "building existence-check request", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessTokenValue)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, referrors.Wrap(referrors.KindNvi, "calling NVI", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, referrors.Wrap(referrors.KindNvi, "reading NVI response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, referrors.New(referrors.KindNvi, fmt.Sprintf("NVI returned status %d", resp.StatusCode))
	}

	var bundle fhirshared.Bundle
	if err := json.Unmarshal(body, &bundle); err != nil {
		return false, referrors.Wrap(referrors.KindNvi, "parsing NVI bundle", err)
	}
	return len(bundle.Entry) > 0, nil
}

// Submit creates a new NVIDataReference for req and returns the
// resulting ReferralEntity.
func (c *Client) Submit(ctx context.Context, req domain.CreateReferralRequest) (domain.ReferralEntity, error) {
	tok, err := c.tokens.FetchToken(ctx, writeScope, c.endpoint)
	if err != nil {
		return domain.ReferralEntity{}, err
	}

	body, err := json.Marshal(c.toFHIR(req))
	if err != nil {
		return domain.ReferralEntity{}, referrors.Wrap(referrors.KindNvi, "marshaling NVIDataReference", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/NVIDataReference", bytes.NewReader(body))
	if err != nil {
		return domain.ReferralEntity{}, referrors.Wrap(referrors.KindNvi, "building submit request", err)
	}
	httpReq.Header.Set("Content-Type", "application/fhir+json")
	httpReq.Header.Set("Authorization", "Bearer "+tok.AccessTokenValue)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return domain.ReferralEntity{}, referrors.Wrap(referrors.KindNvi, "calling NVI", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.ReferralEntity{}, referrors.Wrap(referrors.KindNvi, "reading NVI response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.ReferralEntity{}, referrors.New(referrors.KindNvi, fmt.Sprintf("NVI returned status %d", resp.StatusCode))
	}

	entity, err := fromFHIR(respBody)
	if err != nil {
		return domain.ReferralEntity{}, referrors.Wrap(referrors.KindNvi, "parsing NVIDataReference response", err)
	}
	return entity, nil
}

// ServerHealthy reports whether the NVI's health endpoint returns 2xx.
func (c *Client) ServerHealthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("endpoint", c.endpoint).Msg("NVI healthcheck failed")
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

type fhirCoding struct {
	System  string `json:"system"`
	Code    string `json:"code"`
	Display string `json:"display,omitempty"`
}

type fhirCodeableConcept struct {
	Coding []fhirCoding `json:"coding"`
}

type fhirReference struct {
	System string `json:"system"`
	Value  string `json:"value"`
}

type nviDataReference struct {
	ResourceType string               `json:"resourceType"`
	ID           string               `json:"id,omitempty"`
	Subject      fhirReference        `json:"subject"`
	Source       fhirReference        `json:"source"`
	SourceType   fhirCodeableConcept  `json:"sourceType"`
	CareContext  fhirCodeableConcept  `json:"careContext"`
	OprfKey      string               `json:"oprfKey"`
}

// toFHIR maps a CreateReferralRequest onto the NVIDataReference shape
// per spec §4.5.1.
func (c *Client) toFHIR(req domain.CreateReferralRequest) nviDataReference {
	return nviDataReference{
		ResourceType: "NVIDataReference",
		Subject:      fhirReference{System: c.systems.PseudonymSystem, Value: req.OprfJWE.String()},
		Source:       fhirReference{System: c.systems.SourceSystem, Value: req.UraNumber.String()},
		SourceType: fhirCodeableConcept{Coding: []fhirCoding{{
			System:  c.systems.OrganizationTypeSystem,
			Code:    req.OrganizationType,
			Display: capitalize(req.OrganizationType),
		}}},
		CareContext: fhirCodeableConcept{Coding: []fhirCoding{{
			System: c.systems.CareContextSystem,
			Code:   req.DataDomain.String(),
		}}},
		OprfKey: req.BlindFactor,
	}
}

func fromFHIR(body []byte) (domain.ReferralEntity, error) {
	var resource nviDataReference
	if err := json.Unmarshal(body, &resource); err != nil {
		return domain.ReferralEntity{}, err
	}
	if len(resource.SourceType.Coding) == 0 {
		return domain.ReferralEntity{}, fmt.Errorf("response missing sourceType.coding")
	}
	if len(resource.CareContext.Coding) == 0 {
		return domain.ReferralEntity{}, fmt.Errorf("response missing careContext.coding")
	}
	return domain.ReferralEntity{
		ID:               resource.ID,
		UraNumber:        resource.Source.Value,
		DataDomain:       resource.CareContext.Coding[0].Code,
		OrganizationType: resource.SourceType.Coding[0].Code,
		Pseudonym:        resource.Subject.Value,
	}, nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
