// Package book holds the candidate model shared by the search sources, the
// filters and the mirror resolver.
package book

import (
	"fmt"
	"hash/fnv"
	"strings"
	"unicode/utf8"

	"github.com/lepinkainen/folio/internal/fileutil"
)

// MinTitleLength is the shortest title a source may emit.
const MinTitleLength = 3

// Provider identifies the kind of source a candidate came from. It decides
// how the candidate's reference is resolved into a download URL.
type Provider int

const (
	ProviderCatalogue Provider = iota
	ProviderArchive
	ProviderWebSearch
)

var providerNames = map[Provider]string{
	ProviderCatalogue: "catalogue",
	ProviderArchive:   "archive",
	ProviderWebSearch: "websearch",
}

func (p Provider) String() string {
	if name, ok := providerNames[p]; ok {
		return name
	}
	return fmt.Sprintf("provider(%d)", int(p))
}

// Terminal reports whether references from this provider already point at
// the file itself.
func (p Provider) Terminal() bool {
	return p == ProviderWebSearch
}

// ParseProvider accepts the names printed by String plus a few aliases.
func ParseProvider(s string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "catalogue", "catalog", "libgen":
		return ProviderCatalogue, nil
	case "archive", "annas", "anna":
		return ProviderArchive, nil
	case "websearch", "web", "web-search":
		return ProviderWebSearch, nil
	}
	return 0, fmt.Errorf("unknown provider %q", s)
}

func (p Provider) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Provider) UnmarshalText(b []byte) error {
	v, err := ParseProvider(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Candidate is one search hit. Values are never mutated after a source has
// produced them.
type Candidate struct {
	ID         int64    `json:"id" yaml:"id"`
	Title      string   `json:"title" yaml:"title"`
	Authors    []string `json:"authors,omitempty" yaml:"authors,omitempty"`
	Format     Format   `json:"format" yaml:"format"`
	Size       string   `json:"size,omitempty" yaml:"size,omitempty"`
	Provider   Provider `json:"provider" yaml:"provider"`
	Source     string   `json:"source,omitempty" yaml:"source,omitempty"`
	Reference  string   `json:"reference" yaml:"reference"`
	DetailsURL string   `json:"details_url" yaml:"details_url"`
	CoverURL   string   `json:"cover_url,omitempty" yaml:"cover_url,omitempty"`
}

// AuthorLine joins the authors for display.
func (c Candidate) AuthorLine() string {
	return strings.Join(c.Authors, ", ")
}

// SuggestedFileName is the file name handed to the download dispatcher.
func (c Candidate) SuggestedFileName() string {
	name := fileutil.SanitizeFilename(strings.TrimSpace(c.Title))
	if name == "" {
		name = fmt.Sprintf("book-%d", c.ID)
	}
	return name + "." + c.Format.Extension()
}

// ValidTitle reports whether title is non-blank and at least MinTitleLength runes.
func ValidTitle(title string) bool {
	title = strings.TrimSpace(title)
	return title != "" && utf8.RuneCountInString(title) >= MinTitleLength
}

// ContentID derives a stable identifier from a content key such as an md5
// or a URL, for sources that expose no numeric id.
func ContentID(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64() & 0x7fffffffffffffff)
}
