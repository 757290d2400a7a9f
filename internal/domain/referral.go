package domain

import "fmt"

// ReferralEntity represents an existing or newly created NVI
// registration, as returned by the NVI client.
type ReferralEntity struct {
	ID               string `json:"id,omitempty"`
	UraNumber        string `json:"ura_number"`
	DataDomain       string `json:"data_domain"`
	OrganizationType string `json:"organization_type"`
	Pseudonym        string `json:"pseudonym,omitempty"`
}

// LogFields returns structured key/value pairs for zerolog, following
// the platform convention of logging domain + referral id on success.
func (r ReferralEntity) LogFields() map[string]any {
	return map[string]any{
		"referral_id": r.ID,
		"ura_number":  r.UraNumber,
		"data_domain": r.DataDomain,
	}
}

// CreateReferralRequest is submitted to the NVI to register a new
// referral pointer.
type CreateReferralRequest struct {
	OprfJWE          OprfPseudonymJWE
	BlindFactor      string
	DataDomain       DataDomain
	UraNumber        UraNumber
	OrganizationType string
}

// ReferralQuery asks the NVI whether a referral already exists. OprfJWE
// and BlindFactor must be both present or both absent.
type ReferralQuery struct {
	OprfJWE          *OprfPseudonymJWE
	BlindFactor      *string
	DataDomain       DataDomain
	UraNumber        UraNumber
	OrganizationType string
}

// NewReferralQuery enforces the "both or neither" invariant on the
// OPRF JWE / blind factor pair at construction time.
func NewReferralQuery(jwe *OprfPseudonymJWE, blindFactor *string, domain DataDomain, ura UraNumber, orgType string) (ReferralQuery, error) {
	if (jwe == nil) != (blindFactor == nil) {
		return ReferralQuery{}, fmt.Errorf("domain: ReferralQuery requires oprf_jwe and blind_factor to be both present or both absent")
	}
	return ReferralQuery{
		OprfJWE:          jwe,
		BlindFactor:      blindFactor,
		DataDomain:       domain,
		UraNumber:        ura,
		OrganizationType: orgType,
	}, nil
}
