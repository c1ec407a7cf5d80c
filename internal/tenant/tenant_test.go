package tenant

import (
	"errors"
	"testing"
)

func TestSanitize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    ID
		wantErr bool
	}{
		{name: "digits", raw: "42", want: "42"},
		{name: "surrounding whitespace", raw: "  42\t", want: "42"},
		{name: "leading zeros kept", raw: "007", want: "007"},
		{name: "large number", raw: "123456789012345678901234567890", want: "123456789012345678901234567890"},
		{name: "empty", raw: "", wantErr: true},
		{name: "blank", raw: "   ", wantErr: true},
		{name: "negative", raw: "-1", wantErr: true},
		{name: "traversal", raw: "../1", wantErr: true},
		{name: "slash", raw: "1/2", wantErr: true},
		{name: "alpha", raw: "12a", wantErr: true},
		{name: "inner space", raw: "1 2", wantErr: true},
		{name: "unicode digit", raw: "٤٢", wantErr: true},
		{name: "newline injection", raw: "1\n2", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Sanitize(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalid) {
					t.Fatalf("Sanitize(%q) error = %v, want ErrInvalid", tt.raw, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Sanitize(%q) unexpected error: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Fatalf("Sanitize(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestPrefix(t *testing.T) {
	t.Parallel()
	if got := ID("42").Prefix(); got != "42/" {
		t.Fatalf("Prefix() = %q", got)
	}
}
