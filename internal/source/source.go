// Package source scrapes the individual book sources. Every adapter turns a
// query into a Result and never fails hard: network, status and layout
// faults travel in Result.Err next to whatever was extracted before them.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lepinkainen/folio/internal/book"
	"github.com/lepinkainen/folio/internal/httpx"
)

const (
	DefaultCatalogueURL = "https://libgen.rs"
	DefaultArchiveURL   = "https://annas-archive.org"

	// Upper bound on candidates kept from a single results page.
	maxResultsPerPage = 100
)

// ErrUnexpectedLayout means a page was fetched but did not have the
// structure the parser relies on.
var ErrUnexpectedLayout = errors.New("unexpected page layout")

// Result is the outcome of one adapter for one query. A nil Err with no
// candidates means the source had no matches.
type Result struct {
	Candidates []book.Candidate
	Err        error
}

// Error records which adapter failed and at which stage.
type Error struct {
	Source string
	Stage  string // "fetch" or "parse"
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("source=%s stage=%s: %v", e.Source, e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Adapter is one search source. Kind selects the scraping strategy.
type Adapter struct {
	Kind    book.Provider
	Name    string
	BaseURL string

	client  *httpx.Client
	engines []Engine
}

// NewCatalogue creates the Library Genesis style table scraper.
func NewCatalogue(client *httpx.Client, baseURL string) Adapter {
	return Adapter{
		Kind:    book.ProviderCatalogue,
		Name:    "catalogue",
		BaseURL: baseOrDefault(baseURL, DefaultCatalogueURL),
		client:  client,
	}
}

// NewArchive creates the Anna's Archive style link scraper.
func NewArchive(client *httpx.Client, baseURL string) Adapter {
	return Adapter{
		Kind:    book.ProviderArchive,
		Name:    "archive",
		BaseURL: baseOrDefault(baseURL, DefaultArchiveURL),
		client:  client,
	}
}

// NewWebSearch creates the composite that queries every engine in parallel.
func NewWebSearch(client *httpx.Client, engines ...Engine) Adapter {
	return Adapter{
		Kind:    book.ProviderWebSearch,
		Name:    "websearch",
		client:  client,
		engines: engines,
	}
}

// SourceName is the name used in logs and search reports.
func (a Adapter) SourceName() string {
	return a.Name
}

// Engines lists the engines of a web search adapter.
func (a Adapter) Engines() []Engine {
	return a.engines
}

// Search runs the adapter against query. It never returns an error
// directly; see Result.
func (a Adapter) Search(ctx context.Context, query string) (res Result) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{}
	}

	defer func() {
		if r := recover(); r != nil {
			res = Result{Candidates: res.Candidates, Err: a.parseError(fmt.Errorf("panic while scraping: %v", r))}
		}
	}()

	switch a.Kind {
	case book.ProviderCatalogue:
		res = a.searchCatalogue(ctx, query)
	case book.ProviderArchive:
		res = a.searchArchive(ctx, query)
	case book.ProviderWebSearch:
		res = a.searchWeb(ctx, query)
	default:
		res = Result{Err: &Error{Source: a.Name, Stage: "fetch", Err: fmt.Errorf("unknown source kind %v", a.Kind)}}
	}

	if res.Err != nil {
		slog.Debug("Source reported a fault", "source", a.Name, "query", query, "candidates", len(res.Candidates), "error", res.Err)
	} else {
		slog.Debug("Source finished", "source", a.Name, "query", query, "candidates", len(res.Candidates))
	}
	return res
}

func (a Adapter) fetchError(err error) error {
	return &Error{Source: a.Name, Stage: "fetch", Err: err}
}

func (a Adapter) parseError(err error) error {
	return &Error{Source: a.Name, Stage: "parse", Err: err}
}

func baseOrDefault(base, fallback string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		base = fallback
	}
	return strings.TrimSuffix(base, "/")
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
