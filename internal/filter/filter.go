// Package filter narrows a merged candidate list. Every filter is pure: it
// keeps the relative order of the survivors and never touches its input.
package filter

import (
	"strings"

	"github.com/samber/lo"

	"github.com/lepinkainen/folio/internal/book"
)

// DefaultBlockedKeywords are matched case-insensitively as substrings of the title.
var DefaultBlockedKeywords = []string{
	"erotica", "xxx", "adult", "sex", "porn", "nude", "naked", "fetish",
}

// Options selects which filters apply.
type Options struct {
	// AllowNSFW turns the content policy off.
	AllowNSFW bool
	// Formats lists the accepted formats. An empty set accepts nothing.
	Formats book.FormatSet
	// BlockedKeywords overrides DefaultBlockedKeywords when non-empty.
	BlockedKeywords []string
}

// DefaultOptions has the content policy on and every supported format allowed.
func DefaultOptions() Options {
	return Options{Formats: book.AllFormats}
}

// Apply runs the content policy and the format filter. Since both are pure
// predicates the order of application does not matter.
func Apply(cands []book.Candidate, opts Options) []book.Candidate {
	keywords := opts.BlockedKeywords
	if len(keywords) == 0 {
		keywords = DefaultBlockedKeywords
	}
	return lo.Filter(cands, func(c book.Candidate, _ int) bool {
		return (opts.AllowNSFW || !blocked(c.Title, keywords)) && opts.Formats.Has(c.Format)
	})
}

// ContentPolicy drops candidates whose title contains a blocked keyword.
// With allowNSFW it returns a copy of the input unchanged.
func ContentPolicy(cands []book.Candidate, allowNSFW bool) []book.Candidate {
	return lo.Filter(cands, func(c book.Candidate, _ int) bool {
		return allowNSFW || !blocked(c.Title, DefaultBlockedKeywords)
	})
}

// Formats keeps candidates whose format is in allowed.
func Formats(cands []book.Candidate, allowed book.FormatSet) []book.Candidate {
	return lo.Filter(cands, func(c book.Candidate, _ int) bool {
		return allowed.Has(c.Format)
	})
}

func blocked(title string, keywords []string) bool {
	title = strings.ToLower(title)
	return lo.ContainsBy(keywords, func(k string) bool {
		k = strings.ToLower(strings.TrimSpace(k))
		return k != "" && strings.Contains(title, k)
	})
}
