// Package symbol normalizes tradable symbol identifiers.
//
// Symbols arrive from flags, config files, and cached documents written by
// other tools. Normalization applies NFKC so fullwidth input (ＮＶＤＡ)
// collapses to its ASCII form, uppercases, and rejects anything that cannot
// name a cache file safely.
package symbol

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// MaxLen is the longest accepted symbol after normalization.
// OCC option roots and class shares (BRK.B) all fit well under this.
const MaxLen = 12

// Normalize returns the canonical form of a raw symbol string.
// The canonical form is NFKC-normalized, uppercased, and restricted to
// A-Z, 0-9, '.' and '-'. Surrounding whitespace is dropped.
func Normalize(raw string) (string, error) {
	s := norm.NFKC.String(strings.TrimSpace(raw))
	s = strings.ToUpper(s)

	if s == "" {
		return "", fmt.Errorf("symbol is empty")
	}

	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		default:
			return "", fmt.Errorf("symbol %q contains invalid character %q", raw, r)
		}
	}

	out := b.String()
	if len(out) > MaxLen {
		return "", fmt.Errorf("symbol %q exceeds %d characters", out, MaxLen)
	}
	if out[0] == '.' || out[0] == '-' {
		return "", fmt.Errorf("symbol %q must start with a letter or digit", out)
	}
	return out, nil
}

// MustNormalize is Normalize for symbols known to be valid, e.g. test fixtures.
func MustNormalize(raw string) string {
	s, err := Normalize(raw)
	if err != nil {
		panic(err)
	}
	return s
}
