package vectorizer

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	xtransform "golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Transform rewrites a raw token before it is resolved to pieces. It is
// applied once per token, in input order, and must not keep state of its own.
type Transform func(string) string

// Identity returns s unchanged.
func Identity(s string) string { return s }

// Lower lowercases s using Unicode case mapping.
func Lower(s string) string {
	return cases.Lower(language.Und).String(s)
}

// Fold lowercases s and strips combining marks, so "Héllo" becomes "hello".
func Fold(s string) string {
	t := xtransform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := xtransform.String(t, s)
	if err != nil {
		out = s
	}
	return Lower(out)
}

// Chain applies transforms left to right.
func Chain(ts ...Transform) Transform {
	return func(s string) string {
		for _, t := range ts {
			s = t(s)
		}
		return s
	}
}

// TransformByName resolves a configured transform name.
func TransformByName(name string) (Transform, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "identity", "none":
		return Identity, nil
	case "lower":
		return Lower, nil
	case "fold":
		return Fold, nil
	default:
		return nil, fmt.Errorf("unknown transform %q (expected identity|lower|fold)", name)
	}
}

func orIdentity(t Transform) Transform {
	if t == nil {
		return Identity
	}
	return t
}
