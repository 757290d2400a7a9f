// Package bundleregistration implements manual referral registration
// from an inbound FHIR transaction Bundle (spec §4.10): every
// non-Patient entry is resolved to its patient's BSN and run through
// the registration pipeline, producing a transaction-response Bundle.
package bundleregistration

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/minvws/nvi-registration-service/internal/domain"
	"github.com/minvws/nvi-registration-service/internal/platform/fhirshared"
	"github.com/minvws/nvi-registration-service/internal/platform/referrors"
)

// Registrar drives the per-BSN registration pipeline, implemented by
// *registration.Service.
type Registrar interface {
	Register(ctx context.Context, bsn domain.BSN, dataDomain domain.DataDomain) (domain.ReferralEntity, bool, error)
}

// Service handles manual registration from an inbound FHIR Bundle.
type Service struct {
	registrar Registrar
}

func New(registrar Registrar) *Service {
	return &Service{registrar: registrar}
}

// Register processes every clinical resource in the bundle and returns
// a transaction-response Bundle carrying one OperationOutcome entry
// per processed resource. Patient entries themselves are skipped —
// they exist only to be referenced.
func (s *Service) Register(ctx context.Context, bundle fhirshared.Bundle) (*fhirshared.Bundle, error) {
	resources, err := mapByID(bundle)
	if err != nil {
		return nil, err
	}

	var entries []fhirshared.BundleEntry
	for _, resource := range resources {
		if resource.ResourceType == "Patient" {
			continue
		}
		entries = append(entries, s.processEntry(ctx, resource, resources))
	}

	return fhirshared.NewTransactionResponse(entries), nil
}

func (s *Service) processEntry(ctx context.Context, resource fhirshared.GenericResource, byID map[string]fhirshared.GenericResource) fhirshared.BundleEntry {
	ref := resource.PatientReference()
	if ref == nil || ref.Reference == "" {
		return outcomeEntry(400, fhirshared.NewOperationOutcome(fhirshared.IssueSeverityError, fhirshared.IssueTypeInvalid, fmt.Sprintf("no patient reference found for %s", resource.ID)))
	}

	refType, refID, err := parseRelativeReference(ref.Reference)
	if err != nil {
		return outcomeEntry(400, fhirshared.NewOperationOutcome(fhirshared.IssueSeverityError, fhirshared.IssueTypeInvalid, err.Error()))
	}
	if refType != "Patient" {
		return outcomeEntry(400, fhirshared.NewOperationOutcome(fhirshared.IssueSeverityError, fhirshared.IssueTypeInvalid, "reference is not a valid Patient reference"))
	}

	patient, ok := byID[refID]
	if !ok {
		return outcomeEntry(400, fhirshared.NewOperationOutcome(fhirshared.IssueSeverityError, fhirshared.IssueTypeInvalid, "patient associated with resource does not exist in bundle"))
	}
	if patient.ResourceType != "Patient" {
		return outcomeEntry(400, fhirshared.NewOperationOutcome(fhirshared.IssueSeverityError, fhirshared.IssueTypeInvalid, "referenced resource is not a Patient"))
	}

	bsnValues := patient.BSNIdentifiers()
	if len(bsnValues) != 1 {
		return outcomeEntry(400, fhirshared.NewOperationOutcome(fhirshared.IssueSeverityError, fhirshared.IssueTypeInvalid, "exactly one identifier with the BSN system is required"))
	}

	bsn, err := domain.NewBSN(bsnValues[0])
	if err != nil {
		return outcomeEntry(400, fhirshared.NewOperationOutcome(fhirshared.IssueSeverityError, fhirshared.IssueTypeInvalid, err.Error()))
	}

	_, created, err := s.registrar.Register(ctx, bsn, domain.DataDomain(resource.ResourceType))
	if err != nil {
		status := 500
		if re, ok := err.(*referrors.Error); ok {
			status = referrors.HTTPStatus(re.Kind)
		}
		return outcomeEntry(status, referrors.Outcome(err))
	}
	if !created {
		return outcomeEntry(400, fhirshared.DuplicateOutcome("Record already exists"))
	}
	return outcomeEntry(201, fhirshared.CreatedOutcome("Record created successfully"))
}

func outcomeEntry(status int, outcome *fhirshared.OperationOutcome) fhirshared.BundleEntry {
	return fhirshared.BundleEntry{
		Response: &fhirshared.BundleResponse{
			Status:  fmt.Sprintf("%d", status),
			Outcome: outcome,
		},
	}
}

// mapByID builds the id -> resource lookup table used to resolve
// Patient references, and rejects an empty bundle.
func mapByID(bundle fhirshared.Bundle) (map[string]fhirshared.GenericResource, error) {
	if len(bundle.Entry) == 0 {
		return nil, referrors.New(referrors.KindInvalidResource, "bundle has no entries")
	}

	resources := make(map[string]fhirshared.GenericResource, len(bundle.Entry))
	for _, entry := range bundle.Entry {
		if len(entry.Resource) == 0 {
			continue
		}
		var resource fhirshared.GenericResource
		if err := json.Unmarshal(entry.Resource, &resource); err != nil {
			continue
		}
		if resource.ID != "" {
			resources[resource.ID] = resource
		}
	}
	return resources, nil
}

// parseRelativeReference splits a FHIR relative reference ("Patient/123")
// into its resource type and id. Contained references ("#id") and
// references with no slash are rejected.
func parseRelativeReference(reference string) (resourceType, id string, err error) {
	if strings.HasPrefix(reference, "#") {
		return "", "", fmt.Errorf("contained references are not supported: %q", reference)
	}
	parts := strings.SplitN(reference, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("reference %q is not relative, only relative references are allowed", reference)
	}
	return parts[0], parts[1], nil
}
