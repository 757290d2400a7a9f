package fhirshared

import (
	"encoding/json"
	"time"
)

// Bundle represents a FHIR Bundle resource — either a searchset returned
// by the metadata source, or a transaction/transaction-response we build
// for bundle registration.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	Type         string        `json:"type"`
	Timestamp    *time.Time    `json:"timestamp,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
}

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
	Request  *BundleRequest  `json:"request,omitempty"`
	Response *BundleResponse `json:"response,omitempty"`
}

type BundleRequest struct {
	Method string `json:"method"`
	URL    string `json:"url"`
}

type BundleResponse struct {
	Status       string      `json:"status"`
	Location     string      `json:"location,omitempty"`
	LastModified *time.Time  `json:"lastModified,omitempty"`
	Outcome      interface{} `json:"outcome,omitempty"`
}

// NewTransactionResponse builds a "transaction-response" Bundle from a
// set of per-entry outcomes, the shape bundle registration returns.
func NewTransactionResponse(entries []BundleEntry) *Bundle {
	now := time.Now().UTC()
	return &Bundle{
		ResourceType: "Bundle",
		Type:         "transaction-response",
		Timestamp:    &now,
		Entry:        entries,
	}
}

// Meta is the FHIR "meta" element this service reads for lastUpdated.
type Meta struct {
	LastUpdated *time.Time `json:"lastUpdated,omitempty"`
}

// Identifier is a FHIR Identifier element.
type Identifier struct {
	System string `json:"system,omitempty"`
	Value  string `json:"value,omitempty"`
}

// Reference is a FHIR Reference element, e.g. {"reference": "Patient/123"}.
type Reference struct {
	Reference string `json:"reference,omitempty"`
}

// BSNSystemURI is the canonical FHIR NamingSystem URI for Dutch BSNs.
const BSNSystemURI = "http://fhir.nl/fhir/NamingSystem/bsn"

// GenericResource is the minimal shape this service needs to read out
// of an arbitrary FHIR resource: its type, id, meta.lastUpdated, (for
// Patient) its identifiers, and (for clinical resources) the reference
// to the patient it concerns.
type GenericResource struct {
	ResourceType string       `json:"resourceType"`
	ID           string       `json:"id"`
	Meta         *Meta        `json:"meta,omitempty"`
	Identifier   []Identifier `json:"identifier,omitempty"`
	Subject      *Reference   `json:"subject,omitempty"`
	Patient      *Reference   `json:"patient,omitempty"`
}

// PatientReference returns whichever of "subject" or "patient" is
// present on the resource — different FHIR resource types name their
// patient-pointing field differently (e.g. Observation.subject vs.
// Immunization.patient).
func (r GenericResource) PatientReference() *Reference {
	if r.Subject != nil {
		return r.Subject
	}
	return r.Patient
}

// BSNIdentifiers filters a Patient resource's identifiers down to the
// ones carrying the canonical BSN system URI.
func (r GenericResource) BSNIdentifiers() []string {
	var values []string
	for _, id := range r.Identifier {
		if id.System == BSNSystemURI && id.Value != "" {
			values = append(values, id.Value)
		}
	}
	return values
}
