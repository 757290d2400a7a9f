package domain

import (
	"encoding/json"
	"errors"
)

// ErrEmptyPseudonymJWE is returned when a pseudonym service response
// carries an empty or missing "jwe" field.
var ErrEmptyPseudonymJWE = errors.New("domain: OPRF pseudonym JWE must not be empty")

// DataDomain is an opaque identifier of a care context, e.g.
// "ImagingStudy" or "MedicationStatement". The set of recognized
// domains is fixed per deployment by configuration, not by this type.
type DataDomain string

func (d DataDomain) String() string { return string(d) }

// PersonalIdentifier is the tuple the OPRF client canonicalizes and
// derives a pseudonym from. For this deployment it is always
// ("NL", "BSN", <bsn>), but the shape generalizes to other land codes
// and identifier types.
type PersonalIdentifier struct {
	LandCode string `json:"landCode"`
	Type     string `json:"type"`
	Value    string `json:"value"`
}

// NewBSNPersonalIdentifier builds the canonical Dutch-BSN personal
// identifier used throughout the registration pipeline.
func NewBSNPersonalIdentifier(bsn BSN) PersonalIdentifier {
	return PersonalIdentifier{LandCode: "NL", Type: "BSN", Value: bsn.String()}
}

// CanonicalJSON serializes the identifier as camelCase JSON in declared
// field order, the exact byte sequence the OPRF client hashes into key
// material. encoding/json preserves struct field declaration order for
// marshaling, which is what makes this deterministic.
func (p PersonalIdentifier) CanonicalJSON() ([]byte, error) {
	return json.Marshal(p)
}

// OprfPseudonymJWE is the opaque output of remote OPRF evaluation. It is
// passed verbatim as the NVI's "pseudonym" value. Neither the JWE nor
// the blind factor alone identifies an NVI record; the pair does.
type OprfPseudonymJWE struct {
	jwe string
}

// NewOprfPseudonymJWE wraps a non-empty JWE string.
func NewOprfPseudonymJWE(jwe string) (OprfPseudonymJWE, error) {
	if jwe == "" {
		return OprfPseudonymJWE{}, ErrEmptyPseudonymJWE
	}
	return OprfPseudonymJWE{jwe: jwe}, nil
}

func (o OprfPseudonymJWE) String() string { return o.jwe }
