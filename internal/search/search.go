// Package search fans a query out to every registered source and merges
// the results.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/lepinkainen/folio/internal/book"
	"github.com/lepinkainen/folio/internal/source"
)

var (
	// ErrAllSourcesFailed is returned when every source reported a fault and
	// no candidate was found.
	ErrAllSourcesFailed = errors.New("all sources failed")
	// ErrEmptyQuery is returned for blank queries.
	ErrEmptyQuery = errors.New("empty query")
)

// Searcher is anything that can answer a query the way a source adapter does.
type Searcher interface {
	Search(ctx context.Context, query string) source.Result
}

// Named is implemented by searchers that want to appear under their own name
// in reports.
type Named interface {
	SourceName() string
}

// Report describes how one source fared.
type Report struct {
	Source string
	Count  int
	Err    error
	Took   time.Duration
}

// Aggregator runs all sources concurrently for each query.
type Aggregator struct {
	sources []Searcher
	names   []string
	limit   int
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithParallelism caps how many sources run at once. Zero means no cap.
func WithParallelism(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.limit = n
		}
	}
}

// NewAggregator registers sources in the order their results are merged.
func NewAggregator(sources []Searcher, opts ...Option) *Aggregator {
	a := &Aggregator{
		sources: sources,
		names: lo.Map(sources, func(s Searcher, i int) string {
			return sourceName(s, i)
		}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Sources returns the registered source names in merge order.
func (a *Aggregator) Sources() []string {
	return append([]string(nil), a.names...)
}

// Aggregate returns the candidates of every source, concatenated in
// registration order. A source that fails contributes whatever it found
// before failing. The only error is ErrAllSourcesFailed (or ErrEmptyQuery).
func (a *Aggregator) Aggregate(ctx context.Context, query string) ([]book.Candidate, error) {
	cands, _, err := a.AggregateTrace(ctx, query)
	return cands, err
}

// AggregateTrace is Aggregate plus one Report per source in registration order.
func (a *Aggregator) AggregateTrace(ctx context.Context, query string) ([]book.Candidate, []Report, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil, ErrEmptyQuery
	}
	if len(a.sources) == 0 {
		return nil, nil, nil
	}

	results := make([]source.Result, len(a.sources))
	reports := make([]Report, len(a.sources))

	// Every source runs to completion; a failing source never cancels the others.
	var g errgroup.Group
	if a.limit > 0 {
		g.SetLimit(a.limit)
	}
	for i, s := range a.sources {
		g.Go(func() error {
			start := time.Now()
			results[i] = s.Search(ctx, query)
			reports[i] = Report{
				Source: a.names[i],
				Count:  len(results[i].Candidates),
				Err:    results[i].Err,
				Took:   time.Since(start),
			}
			return nil
		})
	}
	_ = g.Wait()

	cands := lo.FlatMap(results, func(r source.Result, _ int) []book.Candidate {
		return r.Candidates
	})

	failed := lo.CountBy(reports, func(r Report) bool { return r.Err != nil })
	for _, r := range reports {
		if r.Err != nil {
			slog.Warn("Source failed", "source", r.Source, "query", query, "error", r.Err)
		}
	}

	if failed == len(reports) && len(cands) == 0 {
		return nil, reports, ErrAllSourcesFailed
	}

	slog.Debug("Aggregated search", "query", query, "candidates", len(cands), "sources", len(reports), "failed", failed)
	return cands, reports, nil
}

func sourceName(s Searcher, i int) string {
	if n, ok := s.(Named); ok && n.SourceName() != "" {
		return n.SourceName()
	}
	return fmt.Sprintf("source-%d", i)
}
