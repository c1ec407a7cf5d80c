package util

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateFileName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "plain", in: "report.pdf", want: "report.pdf"},
		{name: "trimmed", in: "  report.pdf ", want: "report.pdf"},
		{name: "spaces inside", in: "q1 report.pdf", want: "q1 report.pdf"},
		{name: "blank", in: "   ", wantErr: true},
		{name: "traversal", in: "../42/x", wantErr: true},
		{name: "dots only", in: "..", wantErr: true},
		{name: "slash", in: "a/b.txt", wantErr: true},
		{name: "backslash", in: `a\b.txt`, wantErr: true},
		{name: "control", in: "a\x00b", wantErr: true},
		{name: "too long", in: strings.Repeat("a", MaxFileNameBytes+1), wantErr: true},
		{name: "max length", in: strings.Repeat("a", MaxFileNameBytes), want: strings.Repeat("a", MaxFileNameBytes)},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ValidateFileName(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidFileName) {
					t.Fatalf("expected ErrInvalidFileName, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBaseName(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"report.pdf":             "report.pdf",
		`C:\Users\me\report.pdf`: "report.pdf",
		"/tmp/upload/report.pdf": "report.pdf",
		"dir/":                   "",
	}
	for in, want := range cases {
		if got := BaseName(in); got != want {
			t.Fatalf("BaseName(%q) = %q, want %q", in, got, want)
		}
	}
}
