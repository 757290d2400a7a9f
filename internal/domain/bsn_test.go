package domain

import "testing"

func TestNewBSN(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{name: "valid bsn", value: "200060429", wantErr: false},
		{name: "fails elfproef", value: "123456789", wantErr: true},
		{name: "too short", value: "12345678", wantErr: true},
		{name: "too long", value: "1234567890", wantErr: true},
		{name: "non-numeric", value: "20006042a", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bsn, err := NewBSN(tt.value)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("NewBSN(%q) = nil error, want error", tt.value)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewBSN(%q) unexpected error: %v", tt.value, err)
			}
			if bsn.String() != tt.value {
				t.Errorf("String() = %q, want %q", bsn.String(), tt.value)
			}
		})
	}
}

func TestBSNHash(t *testing.T) {
	bsn, err := NewBSN("200060429")
	if err != nil {
		t.Fatalf("NewBSN: %v", err)
	}
	h1 := bsn.Hash()
	h2 := bsn.Hash()
	if h1 != h2 {
		t.Errorf("Hash() is not deterministic: %q != %q", h1, h2)
	}
	if len(h1) != 64 {
		t.Errorf("Hash() length = %d, want 64 (sha256 hex)", len(h1))
	}
}
