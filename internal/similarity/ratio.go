// Package similarity scores how alike two strings are.
//
// Ratio is the Ratcliff/Obershelp gestalt ratio 2*M/T computed over runes,
// where M is the number of matched runes and T the combined length. The
// recurring-pattern thresholds (0.8 for descriptions, 0.7 for counterparts)
// are calibrated against this measure, so swapping it for an edit-distance
// ratio would shift every threshold.
package similarity

import (
	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Ratio returns a similarity score in [0, 1]. Two empty strings score 1.
func Ratio(a, b string) float64 {
	return difflib.NewMatcher(runesOf(a), runesOf(b)).Ratio()
}

// RatioFold is Ratio after Unicode lower-casing both inputs.
func RatioFold(a, b string) float64 {
	return Ratio(Fold(a), Fold(b))
}

// Fold lower-cases s using Portuguese casing rules.
func Fold(s string) string {
	return cases.Lower(language.BrazilianPortuguese).String(s)
}

// runesOf splits s into one element per rune so multi-byte letters compare
// as single symbols.
func runesOf(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
