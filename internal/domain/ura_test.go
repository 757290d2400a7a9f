package domain

import "testing"

func TestNewUraNumber(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		want    string
		wantErr bool
	}{
		{name: "int padded", value: 123, want: "00000123"},
		{name: "string padded", value: "4567", want: "00004567"},
		{name: "already 8 digits", value: "12345678", want: "12345678"},
		{name: "too many digits", value: "123456789", wantErr: true},
		{name: "non-numeric string", value: "abc", wantErr: true},
		{name: "unsupported type", value: 1.5, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ura, err := NewUraNumber(tt.value)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("NewUraNumber(%v) = nil error, want error", tt.value)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewUraNumber(%v) unexpected error: %v", tt.value, err)
			}
			if ura.String() != tt.want {
				t.Errorf("String() = %q, want %q", ura.String(), tt.want)
			}
		})
	}
}

func TestUraNumberEqual(t *testing.T) {
	a := MustUraNumber("123")
	b := MustUraNumber(123)
	if !a.Equal(b) {
		t.Errorf("expected %q and %q to be equal", a, b)
	}
}
