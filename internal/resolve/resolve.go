// Package resolve turns a candidate's reference into a direct download URL
// by following the mirror pages of its source.
//
// The chase is a small state machine. Catalogue mirror pages link the file
// directly. Archive item pages either link a catalogue mirror, which adds
// one catalogue step, or offer a slow partner download that is taken as
// final. Web search references already point at the file.
package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/lepinkainen/folio/internal/book"
	"github.com/lepinkainen/folio/internal/httpx"
)

const (
	DefaultMaxHops         = 3
	DefaultCatalogueMarker = "library.lol"
)

// DefaultFallbackLabels are the link texts accepted on archive pages when no
// catalogue mirror is linked.
var DefaultFallbackLabels = []string{"Slow Partner Server"}

// Fetcher loads and parses a page. *httpx.Client satisfies it.
type Fetcher interface {
	Document(ctx context.Context, rawURL string, header http.Header) (*httpx.Page, error)
}

// Result is the outcome of one resolution. Exactly one of URL and Err is set.
type Result struct {
	URL  string
	Hops int
	Err  error
}

// OK reports whether a download URL was found.
func (r Result) OK() bool {
	return r.Err == nil && r.URL != ""
}

// Resolver follows mirror pages. It keeps no state between calls and is
// safe for concurrent use.
type Resolver struct {
	fetch   Fetcher
	maxHops int
	marker  string
	labels  []string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithMaxHops sets how many follow-up pages may be chased after the first.
func WithMaxHops(n int) Option {
	return func(r *Resolver) {
		if n >= 0 {
			r.maxHops = n
		}
	}
}

// WithCatalogueMarker sets the substring identifying catalogue mirror links
// on archive pages.
func WithCatalogueMarker(marker string) Option {
	return func(r *Resolver) {
		if marker = strings.TrimSpace(marker); marker != "" {
			r.marker = marker
		}
	}
}

// WithFallbackLabels sets the link texts accepted as direct downloads on
// archive pages.
func WithFallbackLabels(labels ...string) Option {
	return func(r *Resolver) {
		if len(labels) > 0 {
			r.labels = labels
		}
	}
}

// New creates a Resolver.
func New(fetch Fetcher, opts ...Option) *Resolver {
	r := &Resolver{
		fetch:   fetch,
		maxHops: DefaultMaxHops,
		marker:  DefaultCatalogueMarker,
		labels:  DefaultFallbackLabels,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type state int

const (
	stateCatalogue state = iota
	stateArchive
)

func (s state) String() string {
	if s == stateArchive {
		return "archive"
	}
	return "catalogue"
}

// step is one pending page visit.
type step struct {
	state state
	url   string
	depth int
}

// Resolve finds the download URL for c. Failures are reported in Result.Err.
func (r *Resolver) Resolve(ctx context.Context, c book.Candidate) Result {
	ref := strings.TrimSpace(c.Reference)
	if ref == "" {
		return Result{Err: noLink("")}
	}

	switch c.Provider {
	case book.ProviderWebSearch:
		return Result{URL: ref}
	case book.ProviderCatalogue:
		return r.run(ctx, step{state: stateCatalogue, url: ref})
	case book.ProviderArchive:
		return r.run(ctx, step{state: stateArchive, url: ref})
	}
	return Result{Err: noLink(ref)}
}

func (r *Resolver) run(ctx context.Context, cur step) Result {
	hops := 0
	for {
		if cur.depth > r.maxHops {
			slog.Debug("Resolution hop limit reached", "url", cur.url, "depth", cur.depth, "max", r.maxHops)
			return Result{Hops: hops, Err: &Failure{Kind: KindRecursionLimit, URL: cur.url}}
		}

		page, err := r.fetch.Document(ctx, cur.url, nil)
		hops++
		if err != nil {
			return Result{Hops: hops, Err: network(cur.url, err)}
		}

		var (
			next  *step
			final string
		)
		switch cur.state {
		case stateCatalogue:
			final, err = r.catalogueStep(page)
		case stateArchive:
			next, final, err = r.archiveStep(page, cur)
		default:
			err = fmt.Errorf("unknown resolution state %d", cur.state)
		}
		if err != nil {
			return Result{Hops: hops, Err: err}
		}

		slog.Debug("Resolution step", "state", cur.state, "url", cur.url, "depth", cur.depth, "final", final)
		if next == nil {
			return Result{URL: final, Hops: hops}
		}
		cur = *next
	}
}

// catalogueStep takes the first link inside the #download block.
func (r *Resolver) catalogueStep(page *httpx.Page) (string, error) {
	href, ok := page.Doc.Find("#download a[href]").First().Attr("href")
	if !ok {
		return "", noLink(page.URL.String())
	}
	final := page.Resolve(href)
	if final == "" {
		return "", noLink(page.URL.String())
	}
	return final, nil
}

// archiveStep prefers a catalogue mirror link, which continues the chase one
// level deeper, and otherwise accepts a fallback download link as final.
func (r *Resolver) archiveStep(page *httpx.Page, cur step) (*step, string, error) {
	mirror := page.Doc.Find("a[href]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		return strings.Contains(href, r.marker)
	}).First()
	if href, ok := mirror.Attr("href"); ok {
		if next := page.Resolve(href); next != "" {
			return &step{state: stateCatalogue, url: next, depth: cur.depth + 1}, "", nil
		}
	}

	fallback := page.Doc.Find("a[href]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		text := strings.ToLower(s.Text())
		for _, label := range r.labels {
			if label = strings.ToLower(strings.TrimSpace(label)); label != "" && strings.Contains(text, label) {
				return true
			}
		}
		return false
	}).First()
	if href, ok := fallback.Attr("href"); ok {
		if final := page.Resolve(href); final != "" {
			return nil, final, nil
		}
	}

	return nil, "", noLink(page.URL.String())
}
