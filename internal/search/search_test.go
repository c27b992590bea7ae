package search

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lepinkainen/folio/internal/book"
	"github.com/lepinkainen/folio/internal/httpx"
	"github.com/lepinkainen/folio/internal/source"
	"github.com/lepinkainen/folio/internal/testutil"
)

type stubSource struct {
	name  string
	delay time.Duration
	res   source.Result

	inFlight *int32
	peak     *int32
}

func (s stubSource) SourceName() string { return s.name }

func (s stubSource) Search(ctx context.Context, _ string) source.Result {
	if s.inFlight != nil {
		n := atomic.AddInt32(s.inFlight, 1)
		defer atomic.AddInt32(s.inFlight, -1)
		for {
			p := atomic.LoadInt32(s.peak)
			if n <= p || atomic.CompareAndSwapInt32(s.peak, p, n) {
				break
			}
		}
	}
	select {
	case <-time.After(s.delay):
		return s.res
	case <-ctx.Done():
		return source.Result{Err: ctx.Err()}
	}
}

func cands(provider book.Provider, titles ...string) []book.Candidate {
	out := make([]book.Candidate, len(titles))
	for i, title := range titles {
		out[i] = book.Candidate{ID: int64(i + 1), Title: title, Provider: provider, Format: book.FormatPDF}
	}
	return out
}

func titles(cs []book.Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Title
	}
	return out
}

func TestAggregate_PreservesRegistrationOrder(t *testing.T) {
	agg := NewAggregator([]Searcher{
		stubSource{name: "slow", delay: 80 * time.Millisecond, res: source.Result{Candidates: cands(book.ProviderCatalogue, "A1", "A2")}},
		stubSource{name: "fast", delay: 0, res: source.Result{Candidates: cands(book.ProviderArchive, "B1")}},
		stubSource{name: "mid", delay: 20 * time.Millisecond, res: source.Result{Candidates: cands(book.ProviderWebSearch, "C1", "C2")}},
	})

	got, err := agg.Aggregate(context.Background(), "dune")
	require.NoError(t, err)
	assert.Equal(t, []string{"A1", "A2", "B1", "C1", "C2"}, titles(got))
	assert.Equal(t, []string{"slow", "fast", "mid"}, agg.Sources())
}

func TestAggregate_PartialFailureKeepsEverything(t *testing.T) {
	agg := NewAggregator([]Searcher{
		stubSource{name: "broken", res: source.Result{Candidates: cands(book.ProviderCatalogue, "Partial"), Err: errors.New("connection reset")}},
		stubSource{name: "down", res: source.Result{Err: errors.New("HTTP 503")}},
		stubSource{name: "ok", res: source.Result{Candidates: cands(book.ProviderArchive, "Fine")}},
	})

	got, reports, err := agg.AggregateTrace(context.Background(), "dune")
	require.NoError(t, err)
	assert.Equal(t, []string{"Partial", "Fine"}, titles(got))

	require.Len(t, reports, 3)
	assert.Equal(t, "broken", reports[0].Source)
	assert.Equal(t, 1, reports[0].Count)
	assert.Error(t, reports[0].Err)
	assert.Error(t, reports[1].Err)
	assert.NoError(t, reports[2].Err)
}

func TestAggregate_AllFailedWithoutCandidates(t *testing.T) {
	agg := NewAggregator([]Searcher{
		stubSource{name: "a", res: source.Result{Err: errors.New("timeout")}},
		stubSource{name: "b", res: source.Result{Err: errors.New("HTTP 500")}},
	})

	got, err := agg.Aggregate(context.Background(), "dune")
	assert.ErrorIs(t, err, ErrAllSourcesFailed)
	assert.Empty(t, got)
}

func TestAggregate_AllFailedButPartialCandidatesIsNotAnError(t *testing.T) {
	agg := NewAggregator([]Searcher{
		stubSource{name: "a", res: source.Result{Candidates: cands(book.ProviderCatalogue, "Salvaged"), Err: errors.New("parse")}},
		stubSource{name: "b", res: source.Result{Err: errors.New("HTTP 500")}},
	})

	got, err := agg.Aggregate(context.Background(), "dune")
	require.NoError(t, err)
	assert.Equal(t, []string{"Salvaged"}, titles(got))
}

func TestAggregate_NoMatchesIsNotAnError(t *testing.T) {
	agg := NewAggregator([]Searcher{
		stubSource{name: "a", res: source.Result{Err: errors.New("down")}},
		stubSource{name: "b"},
	})

	got, err := agg.Aggregate(context.Background(), "nothing matches")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAggregate_EmptyQuery(t *testing.T) {
	agg := NewAggregator([]Searcher{stubSource{name: "a"}})
	_, err := agg.Aggregate(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestAggregate_RunsSourcesConcurrently(t *testing.T) {
	var inFlight, peak int32
	mk := func(name string) Searcher {
		return stubSource{name: name, delay: 50 * time.Millisecond, inFlight: &inFlight, peak: &peak}
	}

	agg := NewAggregator([]Searcher{mk("a"), mk("b"), mk("c")})
	_, err := agg.Aggregate(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&peak))
}

func TestAggregate_ParallelismCap(t *testing.T) {
	var inFlight, peak int32
	mk := func(name string) Searcher {
		return stubSource{name: name, delay: 20 * time.Millisecond, inFlight: &inFlight, peak: &peak}
	}

	agg := NewAggregator([]Searcher{mk("a"), mk("b"), mk("c")}, WithParallelism(1))
	_, err := agg.Aggregate(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&peak))
}

func TestAggregate_AllAdaptersTimingOut(t *testing.T) {
	release := make(chan struct{})
	hang := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	server := testutil.NewIPv4Server(t, hang)
	t.Cleanup(func() { close(release) })

	client, err := httpx.New(httpx.WithTimeout(50*time.Millisecond), httpx.WithRetryMax(0), httpx.WithRateLimit(0, 0))
	require.NoError(t, err)

	agg := NewAggregator([]Searcher{
		source.NewCatalogue(client, server.URL),
		source.NewArchive(client, server.URL),
		source.NewWebSearch(client, source.DuckDuckGo(server.URL), source.Google(server.URL)),
	})

	start := time.Now()
	got, reports, err := agg.AggregateTrace(context.Background(), "dune")
	assert.ErrorIs(t, err, ErrAllSourcesFailed)
	assert.Empty(t, got)
	assert.Less(t, time.Since(start), 5*time.Second)

	require.Len(t, reports, 3)
	assert.Equal(t, []string{"catalogue", "archive", "websearch"}, []string{reports[0].Source, reports[1].Source, reports[2].Source})
}

type gatedSource struct {
	started chan string
	release chan struct{}
}

func (g gatedSource) Search(ctx context.Context, query string) source.Result {
	g.started <- query
	if query == "first" {
		select {
		case <-ctx.Done():
			return source.Result{Err: ctx.Err()}
		case <-g.release:
		}
	}
	return source.Result{Candidates: cands(book.ProviderArchive, "result for "+query)}
}

func TestSession_LastQueryWins(t *testing.T) {
	src := gatedSource{started: make(chan string, 2), release: make(chan struct{})}
	session := NewSession(NewAggregator([]Searcher{src}))

	type outcome struct {
		cands []book.Candidate
		err   error
	}
	first := make(chan outcome, 1)
	go func() {
		c, err := session.Search(context.Background(), "first")
		first <- outcome{c, err}
	}()
	require.Equal(t, "first", <-src.started)

	got, err := session.Search(context.Background(), "second")
	require.NoError(t, err)
	assert.Equal(t, []string{"result for second"}, titles(got))
	<-src.started

	select {
	case res := <-first:
		assert.ErrorIs(t, res.err, ErrSuperseded)
		assert.Nil(t, res.cands)
	case <-time.After(2 * time.Second):
		t.Fatal("superseded search was not cancelled")
	}
}

func TestSession_SequentialSearchesBothSucceed(t *testing.T) {
	session := NewSession(NewAggregator([]Searcher{
		stubSource{name: "a", res: source.Result{Candidates: cands(book.ProviderCatalogue, "Dune")}},
	}))

	for i := 0; i < 2; i++ {
		got, err := session.Search(context.Background(), "dune")
		require.NoError(t, err)
		assert.Len(t, got, 1)
	}
	session.Close()
}
