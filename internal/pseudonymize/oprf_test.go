package pseudonymize

import (
	"testing"

	"github.com/minvws/nvi-registration-service/internal/domain"
)

func TestBlindIsRandomizedButInfoIsDeterministic(t *testing.T) {
	id := domain.NewBSNPersonalIdentifier(mustBSN(t, "200060429"))
	b := NewBlinder()

	bf1, bi1, err := b.Blind(id, "ura:00012345", "nationale-verwijsindex")
	if err != nil {
		t.Fatalf("Blind: %v", err)
	}
	bf2, bi2, err := b.Blind(id, "ura:00012345", "nationale-verwijsindex")
	if err != nil {
		t.Fatalf("Blind: %v", err)
	}

	if bf1 == bf2 {
		t.Errorf("blind factor should be fresh per call, got identical values")
	}
	if bi1 == bi2 {
		t.Errorf("blinded input should differ per call since the blind factor is randomized")
	}
}

func TestDerivePseudonymIsDeterministic(t *testing.T) {
	id := domain.NewBSNPersonalIdentifier(mustBSN(t, "200060429"))
	canonical, err := id.CanonicalJSON()
	if err != nil {
		t.Fatalf("CanonicalJSON: %v", err)
	}

	p1, err := derivePseudonym(canonical, "ura:00012345", "nationale-verwijsindex")
	if err != nil {
		t.Fatalf("derivePseudonym: %v", err)
	}
	p2, err := derivePseudonym(canonical, "ura:00012345", "nationale-verwijsindex")
	if err != nil {
		t.Fatalf("derivePseudonym: %v", err)
	}
	if string(p1) != string(p2) {
		t.Errorf("derivePseudonym is not deterministic for fixed inputs")
	}
	if len(p1) != 32 {
		t.Errorf("derivePseudonym length = %d, want 32", len(p1))
	}

	p3, err := derivePseudonym(canonical, "ura:00012345", "other-scope")
	if err != nil {
		t.Fatalf("derivePseudonym: %v", err)
	}
	if string(p1) == string(p3) {
		t.Errorf("derivePseudonym should depend on recipient scope")
	}
}

func mustBSN(t *testing.T, value string) domain.BSN {
	t.Helper()
	bsn, err := domain.NewBSN(value)
	if err != nil {
		t.Fatalf("NewBSN(%q): %v", value, err)
	}
	return bsn
}
