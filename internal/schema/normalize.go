package schema

import (
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// maxIdentLen is MySQL's identifier length limit.
const maxIdentLen = 64

// NormalizeIdentifier converts arbitrary header text into a lowercase ASCII
// identifier suitable for MySQL schemas:
//  1. lowercase
//  2. strip accents (NFD → remove Mn → NFC)
//  3. keep [a-z0-9_]; convert space/dash/dot to underscore; drop others
//  4. prefix a leading digit with "c_"
//  5. cap at 64 characters (first 10 + last 53 when over, keeping the
//     usually-distinctive suffix)
//  6. fall back to "col" when nothing survives
func NormalizeIdentifier(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	// Decompose → remove nonspacing marks (accents) → recompose.
	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	)
	ascii, _, _ := transform.String(t, s)

	var b strings.Builder
	prevUnderscore := false
	for _, r := range ascii {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
			prevUnderscore = false
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			prevUnderscore = false
		case r == '_' || r == ' ' || r == '-' || r == '.':
			if !prevUnderscore {
				b.WriteRune('_')
				prevUnderscore = true
			}
		default:
			// drop anything else
		}
	}
	name := strings.Trim(b.String(), "_")
	if name == "" {
		return "col"
	}
	if name[0] >= '0' && name[0] <= '9' {
		name = "c_" + name
	}
	return truncateIdentifier(name)
}

// NormalizeTableName derives a table name from a source file path or key:
// the base name with its extension stripped, normalized like any identifier.
func NormalizeTableName(sourceFile string) string {
	base := filepath.Base(sourceFile)
	if ext := filepath.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	return NormalizeIdentifier(base)
}

// truncateIdentifier enforces the 64-character MySQL limit, returning the
// first 10 and last 53 characters joined by an underscore when over.
func truncateIdentifier(s string) string {
	if len(s) <= maxIdentLen {
		return s
	}
	return s[:10] + "_" + s[len(s)-53:]
}
