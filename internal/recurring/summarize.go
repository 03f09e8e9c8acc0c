package recurring

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/fascinih/finance-app/internal/model"
	"github.com/fascinih/finance-app/internal/similarity"
)

const (
	maxPatternWords = 3
	minWordRunes    = 3
	// Share of descriptions a word must appear in, in tenths.
	commonWordTenths = 7
)

var (
	wordRegex  = regexp.MustCompile(`[\p{L}\p{N}_]+`)
	latinRegex = regexp.MustCompile(`^[a-záàâãéêíóôõúç]+$`)

	stopWords = map[string]bool{
		"de": true, "da": true, "do": true, "das": true, "dos": true,
		"e": true, "o": true, "a": true, "os": true, "as": true,
		"em": true, "no": true, "na": true, "nos": true, "nas": true,
		"para": true, "por": true, "com": true, "sem": true, "sob": true,
		"sobre": true, "entre": true, "ate": true, "até": true,
		"desde": true, "durante": true,
		"pix": true, "transferencia": true, "transferência": true,
		"pagamento": true, "compra": true, "debito": true, "débito": true,
	}
)

// tokenize returns the distinct pattern words of a description, in order.
// A token is a whole word made only of Latin letters (with Portuguese
// accents) that is long enough and not a stop word.
func tokenize(description string) []string {
	var words []string
	seen := make(map[string]bool)
	for _, token := range wordRegex.FindAllString(similarity.Fold(description), -1) {
		if !latinRegex.MatchString(token) ||
			utf8.RuneCountInString(token) < minWordRunes ||
			stopWords[token] || seen[token] {
			continue
		}
		seen[token] = true
		words = append(words, token)
	}
	return words
}

// DescriptionPattern summarizes the wording shared by a group: up to three
// words present in at least 70% of the descriptions, most frequent first.
// Without such words it falls back to the most common full description.
func DescriptionPattern(group []model.Transaction) string {
	if len(group) == 0 {
		return ""
	}

	counts := newCounter()
	for _, txn := range group {
		for _, word := range tokenize(txn.Description) {
			counts.add(word)
		}
	}

	minCount := (commonWordTenths*len(group) + 9) / 10
	if minCount < 1 {
		minCount = 1
	}

	var words []string
	for _, word := range counts.ranked() {
		if counts.counts[word] < minCount {
			break
		}
		words = append(words, word)
		if len(words) == maxPatternWords {
			break
		}
	}
	if len(words) > 0 {
		return strings.Join(words, " ")
	}

	descriptions := newCounter()
	for _, txn := range group {
		descriptions.add(txn.Description)
	}
	return descriptions.mostCommon()
}

// MerchantPattern returns the most common counterpart name, or "".
func MerchantPattern(group []model.Transaction) string {
	counts := newCounter()
	for _, txn := range group {
		if txn.CounterpartName != "" {
			counts.add(txn.CounterpartName)
		}
	}
	return counts.mostCommon()
}

// CategorySuggestion returns the most common effective category, or "".
func CategorySuggestion(group []model.Transaction) string {
	counts := newCounter()
	for _, txn := range group {
		if category := txn.EffectiveCategory(); category != "" {
			counts.add(category)
		}
	}
	return counts.mostCommon()
}

// counter tallies values and remembers first-seen order for tie breaks.
type counter struct {
	counts map[string]int
	order  []string
}

func newCounter() *counter {
	return &counter{counts: make(map[string]int)}
}

func (c *counter) add(value string) {
	if _, ok := c.counts[value]; !ok {
		c.order = append(c.order, value)
	}
	c.counts[value]++
}

// ranked returns values by descending count, first seen first on ties.
func (c *counter) ranked() []string {
	ranked := make([]string, len(c.order))
	copy(ranked, c.order)
	sort.SliceStable(ranked, func(i, j int) bool {
		return c.counts[ranked[i]] > c.counts[ranked[j]]
	})
	return ranked
}

func (c *counter) mostCommon() string {
	best, bestCount := "", 0
	for _, value := range c.order {
		if c.counts[value] > bestCount {
			best, bestCount = value, c.counts[value]
		}
	}
	return best
}
