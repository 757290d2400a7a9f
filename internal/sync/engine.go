// Package sync implements the synchronization engine (spec §4.8): per
// configured data domain, it fetches metadata updates, drives referral
// registration for each BSN, and tracks a per-domain high-water mark.
package sync

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/minvws/nvi-registration-service/internal/domain"
	"github.com/minvws/nvi-registration-service/internal/platform/referrors"
)

// Registrar drives the per-BSN registration pipeline, implemented by
// *registration.Service.
type Registrar interface {
	Register(ctx context.Context, bsn domain.BSN, dataDomain domain.DataDomain) (domain.ReferralEntity, bool, error)
}

// MetadataClient is the subset of *metadataclient.Client the engine
// needs.
type MetadataClient interface {
	GetUpdateScheme(ctx context.Context, resourceType, lastUpdated string) ([]string, *string, error)
	ServerHealthy(ctx context.Context) bool
}

// HealthChecker reports whether an upstream dependency is reachable.
type HealthChecker interface {
	ServerHealthy(ctx context.Context) bool
}

// BsnUpdate pairs one processed BSN with the referral created for it.
type BsnUpdate struct {
	BSN      string
	Referral domain.ReferralEntity
}

// UpdateScheme is the result of synchronizing one domain: the BSNs
// that produced a new referral, and the domain's resulting high-water
// mark entry.
type UpdateScheme struct {
	UpdatedData []BsnUpdate
	DomainEntry domain.DomainMapEntry
}

// Engine owns the per-domain high-water-mark map and coordinates the
// registration pipeline against it.
type Engine struct {
	registrar Registrar
	metadata  MetadataClient
	nvi       HealthChecker
	pseudonym HealthChecker
	logger    zerolog.Logger

	mu      sync.Mutex
	domains map[domain.DataDomain]*domain.DomainMapEntry
}

// New constructs an Engine for the given set of configured data
// domains. domains is the fixed deployment set (spec §6 app.data_domains).
func New(registrar Registrar, metadata MetadataClient, nvi, pseudonym HealthChecker, logger zerolog.Logger, domains []domain.DataDomain) *Engine {
	m := make(map[domain.DataDomain]*domain.DomainMapEntry, len(domains))
	for _, d := range domains {
		m[d] = &domain.DomainMapEntry{}
	}
	return &Engine{
		registrar: registrar,
		metadata:  metadata,
		nvi:       nvi,
		pseudonym: pseudonym,
		logger:    logger,
		domains:   m,
	}
}

// GetAllowedDomains returns the configured domain set, used by the
// boundary to validate inbound requests.
func (e *Engine) GetAllowedDomains() []domain.DataDomain {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.DataDomain, 0, len(e.domains))
	for d := range e.domains {
		out = append(out, d)
	}
	return out
}

// SynchronizeAllDomains synchronizes every configured domain in turn
// and merges the results keyed by domain name.
func (e *Engine) SynchronizeAllDomains(ctx context.Context) (map[string][]UpdateScheme, error) {
	result := make(map[string][]UpdateScheme)
	for _, d := range e.GetAllowedDomains() {
		one, err := e.SynchronizeDomain(ctx, d)
		if err != nil {
			return nil, err
		}
		for k, v := range one {
			result[k] = append(result[k], v...)
		}
	}
	return result, nil
}

// SynchronizeDomain runs one synchronization pass for a single domain
// per spec §4.8.
func (e *Engine) SynchronizeDomain(ctx context.Context, d domain.DataDomain) (map[string][]UpdateScheme, error) {
	e.logger.Info().Str("domain", d.String()).Msg("synchronizing domain")

	if err := e.healthcheck(ctx); err != nil {
		return nil, err
	}

	e.mu.Lock()
	entry, ok := e.domains[d]
	if !ok {
		e.mu.Unlock()
		return nil, referrors.New(referrors.KindInvalidResource, "unknown data domain: "+d.String())
	}
	lastUpdated := ""
	if entry.LastResourceUpdate != nil {
		lastUpdated = *entry.LastResourceUpdate
	}
	e.mu.Unlock()

	bsns, latestTimestamp, err := e.metadata.GetUpdateScheme(ctx, d.String(), lastUpdated)
	if err != nil {
		return nil, err
	}

	var updates []BsnUpdate
	for _, rawBSN := range bsns {
		bsn, err := domain.NewBSN(rawBSN)
		if err != nil {
			e.logger.Warn().Err(err).Str("domain", d.String()).Msg("skipping invalid BSN from metadata source")
			continue
		}

		referral, created, err := e.registrar.Register(ctx, bsn, d)
		if err != nil {
			return nil, err
		}
		if !created {
			continue
		}

		e.mu.Lock()
		if latestTimestamp != nil && (entry.LastResourceUpdate == nil || *entry.LastResourceUpdate != *latestTimestamp) {
			e.logger.Info().Str("domain", d.String()).Str("from", lastUpdated).Str("to", *latestTimestamp).Msg("advancing high-water mark")
			entry.LastResourceUpdate = latestTimestamp
		}
		e.mu.Unlock()

		updates = append(updates, BsnUpdate{BSN: bsn.String(), Referral: referral})
	}

	e.mu.Lock()
	entryCopy := *entry
	e.mu.Unlock()

	return map[string][]UpdateScheme{
		d.String(): {{UpdatedData: updates, DomainEntry: entryCopy}},
	}, nil
}

// ClearCache resets the high-water mark for one domain, or every
// domain when d is nil.
func (e *Engine) ClearCache(d *domain.DataDomain) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d != nil {
		if entry, ok := e.domains[*d]; ok {
			entry.LastResourceUpdate = nil
		}
		return
	}
	for _, entry := range e.domains {
		entry.LastResourceUpdate = nil
	}
}

func (e *Engine) healthcheck(ctx context.Context) error {
	checks := map[string]bool{
		"nvi_api":       e.nvi.ServerHealthy(ctx),
		"pseudonym_api": e.pseudonym.ServerHealthy(ctx),
		"metadata_api":  e.metadata.ServerHealthy(ctx),
	}
	for name, healthy := range checks {
		if !healthy {
			return referrors.New(referrors.KindUnhealthyUpstream, name+" health check failed")
		}
	}
	return nil
}
