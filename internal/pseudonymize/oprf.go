// Package pseudonymize implements the client side of the referral
// registration service's two-step pseudonym derivation: a local,
// domain-separated HKDF hash of the personal identifier followed by
// OPRF blinding (§4.3), then a remote call to the pseudonym service to
// turn the blinded input into an opaque JWE (§4.4).
package pseudonymize

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/cloudflare/circl/group"
	"golang.org/x/crypto/hkdf"

	"github.com/minvws/nvi-registration-service/internal/domain"
)

// blindElementDST is the domain separation tag for hashing the
// HKDF-derived pseudonym onto the ristretto255 group before blinding.
// It is fixed per deployment generation, not per call.
const blindElementDST = "nvi-registration-service-OPRF-blind-v1"

// oprfGroup is the group the deployment's OPRF primitive operates
// over. ristretto255 is the group used by RFC 9497 OPRF suites built
// on SHA-512/ristretto255, and is the group circl's oprf package
// exposes for that suite.
var oprfGroup = group.Ristretto255

// Blinder performs the local half of the OPRF protocol: deriving a
// domain-separated pseudonym for one (personal identifier, recipient)
// pair and blinding it with a fresh random scalar.
type Blinder struct {
	randReader io.Reader
}

// NewBlinder returns a Blinder using crypto/rand for blind-factor
// randomness.
func NewBlinder() *Blinder {
	return &Blinder{randReader: rand.Reader}
}

// Blind derives the domain-separated pseudonym for id scoped to
// (recipientOrganization, recipientScope) and blinds it, returning the
// base64url (padded) blind factor and blinded input.
func (b *Blinder) Blind(id domain.PersonalIdentifier, recipientOrganization, recipientScope string) (blindFactor, blindedInput string, err error) {
	canonical, err := id.CanonicalJSON()
	if err != nil {
		return "", "", fmt.Errorf("pseudonymize: canonicalizing personal identifier: %w", err)
	}

	pseudonym, err := derivePseudonym(canonical, recipientOrganization, recipientScope)
	if err != nil {
		return "", "", err
	}

	scalar := oprfGroup.RandomScalar(b.randReader)
	element := oprfGroup.HashToElement(pseudonym, []byte(blindElementDST))
	blinded := oprfGroup.NewElement().Mul(element, scalar)

	scalarBytes, err := scalar.MarshalBinary()
	if err != nil {
		return "", "", fmt.Errorf("pseudonymize: marshaling blind factor: %w", err)
	}
	blindedBytes, err := blinded.MarshalBinary()
	if err != nil {
		return "", "", fmt.Errorf("pseudonymize: marshaling blinded input: %w", err)
	}

	return base64.URLEncoding.EncodeToString(scalarBytes), base64.URLEncoding.EncodeToString(blindedBytes), nil
}

// derivePseudonym computes the 32-byte HKDF-SHA256 domain-separated
// pseudonym per spec §4.3 step 2: info = "<org>|<scope>|v1", no salt,
// IKM = the canonical JSON bytes of the personal identifier.
func derivePseudonym(canonicalJSON []byte, recipientOrganization, recipientScope string) ([]byte, error) {
	info := []byte(fmt.Sprintf("%s|%s|v1", recipientOrganization, recipientScope))
	reader := hkdf.New(sha256.New, canonicalJSON, nil, info)
	out := make([]byte, 32)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, fmt.Errorf("pseudonymize: deriving pseudonym: %w", err)
	}
	return out, nil
}
