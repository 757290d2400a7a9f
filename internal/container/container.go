// Package container wires the referral registration service's
// components together from a loaded Config, following the teacher's
// cmd/ehr-server/main.go style of explicit constructor calls with no
// dependency-injection framework.
package container

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/minvws/nvi-registration-service/internal/bundleregistration"
	"github.com/minvws/nvi-registration-service/internal/config"
	"github.com/minvws/nvi-registration-service/internal/domain"
	"github.com/minvws/nvi-registration-service/internal/jwtassert"
	"github.com/minvws/nvi-registration-service/internal/metadataclient"
	"github.com/minvws/nvi-registration-service/internal/nviclient"
	"github.com/minvws/nvi-registration-service/internal/oauthclient"
	"github.com/minvws/nvi-registration-service/internal/pseudonymize"
	"github.com/minvws/nvi-registration-service/internal/registration"
	"github.com/minvws/nvi-registration-service/internal/scheduler"
	"github.com/minvws/nvi-registration-service/internal/sync"
)

// Container holds every top-level component the serve command needs.
type Container struct {
	Logger          zerolog.Logger
	Config          *config.Config
	UraNumber       domain.UraNumber
	BundleRegistrar *bundleregistration.Service
	SyncEngine      *sync.Engine
	Scheduler       *scheduler.Scheduler
}

// Build constructs every component from cfg, following spec §2's
// dependency order: OAuth, OPRF/pseudonym, NVI, metadata clients first,
// then registration, then the synchronization engine, bundle
// registration, and scheduler on top.
func Build(cfg *config.Config, logger zerolog.Logger) (*Container, error) {
	uraNumber, err := domain.NewUraNumber(cfg.App.UraNumber)
	if err != nil {
		return nil, fmt.Errorf("container: invalid app.ura_number: %w", err)
	}

	var assertionBuilder oauthclient.AssertionBuilder
	if !cfg.OAuthAPI.Mock && cfg.OAuthAPI.MTLSCert != "" {
		signingKeyPEM, err := os.ReadFile(cfg.OAuthAPI.MTLSKey)
		if err != nil {
			return nil, fmt.Errorf("container: reading oauth signing key: %w", err)
		}
		signingCertPEM, err := os.ReadFile(cfg.OAuthAPI.MTLSCert)
		if err != nil {
			return nil, fmt.Errorf("container: reading oauth signing certificate: %w", err)
		}
		builder, err := jwtassert.New(cfg.App.UraNumber, signingKeyPEM, signingCertPEM, signingCertPEM, cfg.OAuthAPI.IncludeX5c)
		if err != nil {
			return nil, fmt.Errorf("container: building jwt assertion builder: %w", err)
		}
		assertionBuilder = builder
	}

	oauthHTTPClient, err := httpClientFor(cfg.OAuthAPI.EndpointConfig)
	if err != nil {
		return nil, fmt.Errorf("container: oauth http client: %w", err)
	}
	tokens := oauthclient.New(oauthHTTPClient, logger, cfg.OAuthAPI.Endpoint, assertionBuilder, cfg.OAuthAPI.Mock)

	pseudonymHTTPClient, err := httpClientFor(cfg.PseudonymAPI)
	if err != nil {
		return nil, fmt.Errorf("container: pseudonym http client: %w", err)
	}
	pseudonymClient := pseudonymize.New(pseudonymHTTPClient, tokens, logger, cfg.PseudonymAPI.Endpoint)
	blinder := pseudonymize.NewBlinder()

	nviHTTPClient, err := httpClientFor(cfg.NviAPI)
	if err != nil {
		return nil, fmt.Errorf("container: nvi http client: %w", err)
	}
	nviClient := nviclient.New(nviHTTPClient, tokens, logger, cfg.NviAPI.Endpoint, nviclient.FHIRSystems{
		PseudonymSystem:        cfg.NviFHIRSystems.PseudonymSystem,
		SourceSystem:           cfg.NviFHIRSystems.SourceSystem,
		OrganizationTypeSystem: cfg.NviFHIRSystems.OrganizationTypeSystem,
		CareContextSystem:      cfg.NviFHIRSystems.CareContextSystem,
	})

	metadataHTTPClient, err := httpClientFor(cfg.MetadataAPI)
	if err != nil {
		return nil, fmt.Errorf("container: metadata http client: %w", err)
	}
	metadataClient := metadataclient.New(metadataHTTPClient, logger, cfg.MetadataAPI.Endpoint)

	registrationService := registration.New(blinder, pseudonymClient, nviClient, logger, uraNumber, cfg.App.DefaultOrganizationType)

	domains := make([]domain.DataDomain, 0, len(cfg.App.DataDomains))
	for _, d := range cfg.App.DataDomains {
		domains = append(domains, domain.DataDomain(d))
	}
	syncEngine := sync.New(registrationService, metadataClient, nviClient, pseudonymClient, logger, domains)

	bundleRegistrar := bundleregistration.New(registrationService)

	sched := scheduler.New(func(ctx context.Context) error {
		_, err := syncEngine.SynchronizeAllDomains(ctx)
		return err
	}, time.Duration(cfg.Scheduler.ScheduledDelaySec)*time.Second, logger)

	return &Container{
		Logger:          logger,
		Config:          cfg,
		UraNumber:       uraNumber,
		BundleRegistrar: bundleRegistrar,
		SyncEngine:      syncEngine,
		Scheduler:       sched,
	}, nil
}

// httpClientFor builds an *http.Client honoring an endpoint's
// configured timeout and optional mTLS client certificate.
func httpClientFor(ep config.EndpointConfig) (*http.Client, error) {
	client := &http.Client{Timeout: time.Duration(ep.TimeoutSec) * time.Second}
	if ep.MTLSCert == "" || ep.MTLSKey == "" {
		return client, nil
	}

	cert, err := tls.LoadX509KeyPair(ep.MTLSCert, ep.MTLSKey)
	if err != nil {
		return nil, fmt.Errorf("loading mTLS client certificate: %w", err)
	}

	tlsConfig := &tls.Config{Certificates: []tls.Certificate{cert}}
	if ep.VerifyCA != "" {
		caCert, err := os.ReadFile(ep.VerifyCA)
		if err != nil {
			return nil, fmt.Errorf("reading CA bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("no certificates found in CA bundle %q", ep.VerifyCA)
		}
		tlsConfig.RootCAs = pool
	}

	client.Transport = &http.Transport{TLSClientConfig: tlsConfig}
	return client, nil
}
