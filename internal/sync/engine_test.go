package sync

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/minvws/nvi-registration-service/internal/domain"
)

type fakeRegistrar struct {
	calls   []string
	created map[string]bool
}

func (f *fakeRegistrar) Register(ctx context.Context, bsn domain.BSN, dataDomain domain.DataDomain) (domain.ReferralEntity, bool, error) {
	f.calls = append(f.calls, bsn.String())
	if !f.created[bsn.String()] {
		return domain.ReferralEntity{}, false, nil
	}
	return domain.ReferralEntity{ID: "ref-" + bsn.String(), DataDomain: dataDomain.String()}, true, nil
}

type fakeMetadataClient struct {
	bsns     []string
	latest   *string
	healthy  bool
	gotLast  string
	gotCalls int
}

func (f *fakeMetadataClient) GetUpdateScheme(ctx context.Context, resourceType, lastUpdated string) ([]string, *string, error) {
	f.gotLast = lastUpdated
	f.gotCalls++
	return f.bsns, f.latest, nil
}

func (f *fakeMetadataClient) ServerHealthy(ctx context.Context) bool { return f.healthy }

type fakeHealthChecker struct{ healthy bool }

func (f fakeHealthChecker) ServerHealthy(ctx context.Context) bool { return f.healthy }

func strPtr(s string) *string { return &s }

func TestSynchronizeDomainAdvancesHighWaterMarkOnlyForNewReferrals(t *testing.T) {
	registrar := &fakeRegistrar{created: map[string]bool{"200060429": true}}
	metadata := &fakeMetadataClient{
		bsns:    []string{"200060429"},
		latest:  strPtr("2025-12-10T12:00:00Z"),
		healthy: true,
	}
	engine := New(registrar, metadata, fakeHealthChecker{true}, fakeHealthChecker{true}, zerolog.Nop(), []domain.DataDomain{"ImagingStudy"})

	result, err := engine.SynchronizeDomain(context.Background(), "ImagingStudy")
	if err != nil {
		t.Fatalf("SynchronizeDomain: %v", err)
	}

	schemes := result["ImagingStudy"]
	if len(schemes) != 1 {
		t.Fatalf("expected one update scheme, got %d", len(schemes))
	}
	if len(schemes[0].UpdatedData) != 1 || schemes[0].UpdatedData[0].BSN != "200060429" {
		t.Errorf("unexpected updated data: %+v", schemes[0].UpdatedData)
	}
	if schemes[0].DomainEntry.LastResourceUpdate == nil || *schemes[0].DomainEntry.LastResourceUpdate != "2025-12-10T12:00:00Z" {
		t.Errorf("high-water mark not advanced: %+v", schemes[0].DomainEntry)
	}
}

func TestSynchronizeDomainDoesNotAdvanceWhenNothingCreated(t *testing.T) {
	registrar := &fakeRegistrar{created: map[string]bool{}}
	metadata := &fakeMetadataClient{
		bsns:    []string{"200060429"},
		latest:  strPtr("2025-12-10T12:00:00Z"),
		healthy: true,
	}
	engine := New(registrar, metadata, fakeHealthChecker{true}, fakeHealthChecker{true}, zerolog.Nop(), []domain.DataDomain{"ImagingStudy"})

	result, err := engine.SynchronizeDomain(context.Background(), "ImagingStudy")
	if err != nil {
		t.Fatalf("SynchronizeDomain: %v", err)
	}

	entry := result["ImagingStudy"][0].DomainEntry
	if entry.LastResourceUpdate != nil {
		t.Errorf("expected high-water mark to stay nil, got %v", *entry.LastResourceUpdate)
	}
}

func TestSynchronizeDomainFailsFastOnUnhealthyUpstream(t *testing.T) {
	registrar := &fakeRegistrar{created: map[string]bool{}}
	metadata := &fakeMetadataClient{healthy: true}
	engine := New(registrar, metadata, fakeHealthChecker{false}, fakeHealthChecker{true}, zerolog.Nop(), []domain.DataDomain{"ImagingStudy"})

	_, err := engine.SynchronizeDomain(context.Background(), "ImagingStudy")
	if err == nil {
		t.Fatal("expected an error when the NVI healthcheck fails")
	}
	if metadata.gotCalls != 0 {
		t.Errorf("expected GetUpdateScheme not to be called after a failed healthcheck")
	}
}

func TestSynchronizeDomainPassesCurrentHighWaterMark(t *testing.T) {
	registrar := &fakeRegistrar{created: map[string]bool{}}
	metadata := &fakeMetadataClient{healthy: true}
	engine := New(registrar, metadata, fakeHealthChecker{true}, fakeHealthChecker{true}, zerolog.Nop(), []domain.DataDomain{"ImagingStudy"})

	seeded := "2025-01-01T00:00:00Z"
	engine.domains["ImagingStudy"].LastResourceUpdate = &seeded

	if _, err := engine.SynchronizeDomain(context.Background(), "ImagingStudy"); err != nil {
		t.Fatalf("SynchronizeDomain: %v", err)
	}
	if metadata.gotLast != seeded {
		t.Errorf("lastUpdated passed = %q, want %q", metadata.gotLast, seeded)
	}
}

func TestClearCacheResetsOneOrAllDomains(t *testing.T) {
	engine := New(&fakeRegistrar{}, &fakeMetadataClient{}, fakeHealthChecker{true}, fakeHealthChecker{true}, zerolog.Nop(), []domain.DataDomain{"ImagingStudy", "MedicationStatement"})

	a := "2025-01-01T00:00:00Z"
	b := "2025-01-02T00:00:00Z"
	engine.domains["ImagingStudy"].LastResourceUpdate = &a
	engine.domains["MedicationStatement"].LastResourceUpdate = &b

	target := domain.DataDomain("ImagingStudy")
	engine.ClearCache(&target)
	if engine.domains["ImagingStudy"].LastResourceUpdate != nil {
		t.Errorf("expected ImagingStudy to be cleared")
	}
	if engine.domains["MedicationStatement"].LastResourceUpdate == nil {
		t.Errorf("expected MedicationStatement to be untouched")
	}

	engine.ClearCache(nil)
	if engine.domains["MedicationStatement"].LastResourceUpdate != nil {
		t.Errorf("expected ClearCache(nil) to clear every domain")
	}
}

func TestGetAllowedDomains(t *testing.T) {
	engine := New(&fakeRegistrar{}, &fakeMetadataClient{}, fakeHealthChecker{true}, fakeHealthChecker{true}, zerolog.Nop(), []domain.DataDomain{"ImagingStudy", "MedicationStatement"})
	got := engine.GetAllowedDomains()
	if len(got) != 2 {
		t.Errorf("expected 2 allowed domains, got %d", len(got))
	}
}
