package schema

import (
	"strings"
	"testing"
)

// TestNormalizeIdentifier covers lowercasing, accent stripping, separator
// collapsing, leading-digit prefixing, and the 64-character cap.
func TestNormalizeIdentifier(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"simple lowercase", "Name", "name"},
		{"spaces to underscore", "First Name", "first_name"},
		{"dashes and dots", "unit-price.total", "unit_price_total"},
		{"collapses runs", "a - b", "a_b"},
		{"strips accents", "Prénom Café", "prenom_cafe"},
		{"drops symbols", "amount ($)", "amount"},
		{"leading digit prefixed", "2024 total", "c_2024_total"},
		{"trims underscores", "_id_", "id"},
		{"empty falls back", "???", "col"},
		{"blank falls back", "   ", "col"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := NormalizeIdentifier(tt.in); got != tt.want {
				t.Errorf("NormalizeIdentifier(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// TestNormalizeIdentifierLength verifies long identifiers are capped at the
// MySQL limit while keeping the distinctive suffix.
func TestNormalizeIdentifierLength(t *testing.T) {
	t.Parallel()

	in := strings.Repeat("a", 40) + "_" + strings.Repeat("b", 40)
	got := NormalizeIdentifier(in)
	if len(got) > maxIdentLen {
		t.Fatalf("len = %d, want <= %d", len(got), maxIdentLen)
	}
	if !strings.HasSuffix(got, "b") {
		t.Errorf("truncation dropped the suffix: %q", got)
	}
}

// TestNormalizeTableName checks path and extension handling.
func TestNormalizeTableName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"members.csv", "members"},
		{"mba/csv/Claims-2024.CSV", "claims_2024"},
		{"/tmp/export.final.csv", "export_final"},
		{"noext", "noext"},
	}
	for _, tt := range tests {
		if got := NormalizeTableName(tt.in); got != tt.want {
			t.Errorf("NormalizeTableName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
