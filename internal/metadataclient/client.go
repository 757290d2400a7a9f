// Package metadataclient queries the local clinical-data repository
// ("metadata source") for BSNs updated since a given high-water mark
// (spec §4.6).
package metadataclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/minvws/nvi-registration-service/internal/platform/fhirshared"
	"github.com/minvws/nvi-registration-service/internal/platform/referrors"
)

// Client talks to the metadata source's FHIR search endpoint.
type Client struct {
	httpClient *http.Client
	logger     zerolog.Logger
	endpoint   string
}

func New(httpClient *http.Client, logger zerolog.Logger, endpoint string) *Client {
	return &Client{httpClient: httpClient, logger: logger, endpoint: endpoint}
}

// GetUpdateScheme fetches resources of resourceType updated since
// lastUpdated (RFC3339; empty means "all") and returns the BSNs found
// on any Patient entries plus the latest meta.lastUpdated seen across
// every entry in the bundle (not only patients).
func (c *Client) GetUpdateScheme(ctx context.Context, resourceType, lastUpdated string) ([]string, *string, error) {
	params := url.Values{}
	params.Set("_include", resourceType+":subject")
	if lastUpdated != "" {
		params.Set("_lastUpdated", "ge"+lastUpdated)
	}

	reqURL := fmt.Sprintf("%s/%s/_search?%s", c.endpoint, resourceType, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, nil, referrors.Wrap(referrors.KindMetadata, "building search request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, referrors.Wrap(referrors.KindMetadata, "calling metadata source", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, referrors.Wrap(referrors.KindMetadata, "reading metadata response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, referrors.New(referrors.KindMetadata, fmt.Sprintf("metadata source returned status %d", resp.StatusCode))
	}

	var bundle fhirshared.Bundle
	if err := json.Unmarshal(body, &bundle); err != nil {
		return nil, nil, referrors.Wrap(referrors.KindMetadata, "parsing metadata bundle", err)
	}

	latest := latestTimestamp(bundle)
	if len(bundle.Entry) == 0 {
		return nil, latest, nil
	}

	var bsns []string
	for _, entry := range bundle.Entry {
		resource, ok := parseResource(entry.Resource)
		if !ok || resource.ResourceType != "Patient" {
			continue
		}
		bsns = append(bsns, resource.BSNIdentifiers()...)
	}
	return bsns, latest, nil
}

// ServerHealthy reports whether the metadata source's health endpoint
// returns a 2xx status.
func (c *Client) ServerHealthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/metadata", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("endpoint", c.endpoint).Msg("metadata source healthcheck failed")
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func latestTimestamp(bundle fhirshared.Bundle) *string {
	var latest *string
	for _, entry := range bundle.Entry {
		resource, ok := parseResource(entry.Resource)
		if !ok || resource.Meta == nil || resource.Meta.LastUpdated == nil {
			continue
		}
		ts := resource.Meta.LastUpdated.Format("2006-01-02T15:04:05Z07:00")
		if latest == nil || ts > *latest {
			latest = &ts
		}
	}
	return latest
}

func parseResource(raw json.RawMessage) (fhirshared.GenericResource, bool) {
	if len(raw) == 0 {
		return fhirshared.GenericResource{}, false
	}
	var resource fhirshared.GenericResource
	if err := json.Unmarshal(raw, &resource); err != nil {
		return fhirshared.GenericResource{}, false
	}
	return resource, true
}
