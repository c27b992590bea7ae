package source

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lepinkainen/folio/internal/book"
	"github.com/lepinkainen/folio/internal/httpx"
	"github.com/lepinkainen/folio/internal/testutil"
)

func newTestClient(t *testing.T, opts ...httpx.Option) *httpx.Client {
	t.Helper()
	opts = append([]httpx.Option{httpx.WithRateLimit(0, 0), httpx.WithRetryMax(0)}, opts...)
	client, err := httpx.New(opts...)
	require.NoError(t, err)
	return client
}

func TestCatalogueSearch_ParsesRowsAndSkipsMalformed(t *testing.T) {
	mux := http.NewServeMux()
	var query string
	fixture := testutil.ServeFixture(t, "catalogue_search.html")
	mux.HandleFunc("/search.php", func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		fixture(w, r)
	})
	server := testutil.NewIPv4Server(t, mux)

	adapter := NewCatalogue(newTestClient(t), server.URL+"/")
	res := adapter.Search(context.Background(), "go programming")

	require.NoError(t, res.Err)
	assert.Contains(t, query, "req=go+programming")
	assert.Contains(t, query, "res=100")
	assert.Contains(t, query, "sort=year")
	assert.Contains(t, query, "sortmode=DESC")

	require.Len(t, res.Candidates, 3)

	first := res.Candidates[0]
	assert.Equal(t, int64(3167531), first.ID)
	assert.Equal(t, "The Go Programming Language", first.Title)
	assert.Equal(t, []string{"Alan A. A. Donovan", "Brian W. Kernighan"}, first.Authors)
	assert.Equal(t, book.FormatPDF, first.Format)
	assert.Equal(t, "5 Mb", first.Size)
	assert.Equal(t, book.ProviderCatalogue, first.Provider)
	assert.Equal(t, "http://library.lol/main/A0C0E1", first.Reference)
	assert.Equal(t, first.Reference, first.DetailsURL)

	second := res.Candidates[1]
	assert.Equal(t, "Concurrency in Go", second.Title)
	assert.Equal(t, book.FormatEPUB, second.Format)
	assert.Equal(t, server.URL+"/ads.php?md5=B1D2", second.Reference)

	third := res.Candidates[2]
	assert.Equal(t, "Kindle Edition Sampler", third.Title)
	assert.Equal(t, book.FormatAZW3, third.Format)
	assert.Equal(t, []string{"Anonymous"}, third.Authors)
	assert.Equal(t, book.ContentID("https://mirror.example/get/G7"), third.ID)

	for _, c := range res.Candidates {
		assert.True(t, book.ValidTitle(c.Title), "title %q", c.Title)
	}
}

func TestCatalogueSearch_MissingTableIsLayoutFault(t *testing.T) {
	server := testutil.NewIPv4Server(t, testutil.ServeFixture(t, "catalogue_no_table.html"))

	res := NewCatalogue(newTestClient(t), server.URL).Search(context.Background(), "anything")
	require.Error(t, res.Err)
	assert.ErrorIs(t, res.Err, ErrUnexpectedLayout)

	var srcErr *Error
	require.ErrorAs(t, res.Err, &srcErr)
	assert.Equal(t, "catalogue", srcErr.Source)
	assert.Equal(t, "parse", srcErr.Stage)
	assert.Empty(t, res.Candidates)
}

func TestCatalogueSearch_ServerErrorIsFetchFault(t *testing.T) {
	server := testutil.NewIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	res := NewCatalogue(newTestClient(t), server.URL).Search(context.Background(), "go")
	require.Error(t, res.Err)
	assert.Equal(t, http.StatusBadGateway, httpx.StatusCode(res.Err))

	var srcErr *Error
	require.ErrorAs(t, res.Err, &srcErr)
	assert.Equal(t, "fetch", srcErr.Stage)
}

func TestArchiveSearch_ParsesLinks(t *testing.T) {
	mux := http.NewServeMux()
	fixture := testutil.ServeFixture(t, "archive_search.html")
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "dune messiah", r.URL.Query().Get("q"))
		fixture(w, r)
	})
	server := testutil.NewIPv4Server(t, mux)

	res := NewArchive(newTestClient(t), server.URL).Search(context.Background(), "dune messiah")
	require.NoError(t, res.Err)
	require.Len(t, res.Candidates, 3)

	dune := res.Candidates[0]
	assert.Equal(t, "Dune Messiah", dune.Title)
	assert.Equal(t, book.FormatEPUB, dune.Format)
	assert.Equal(t, "1.5 MB", dune.Size)
	assert.Equal(t, book.ContentID("aaa111"), dune.ID)
	assert.Equal(t, server.URL+"/md5/aaa111", dune.Reference)
	assert.Equal(t, book.ProviderArchive, dune.Provider)

	gopl := res.Candidates[1]
	assert.Equal(t, "The Go Programming Language", gopl.Title)
	assert.Equal(t, book.FormatPDF, gopl.Format)
	assert.Equal(t, "12 MB", gopl.Size)
	assert.Equal(t, book.ContentID("ccc333"), gopl.ID)

	scan := res.Candidates[2]
	assert.Equal(t, book.FormatPDF, scan.Format, "defaults to PDF")
	assert.Empty(t, scan.Size)
}

func TestArchiveSearch_CapsAtOneHundredLinks(t *testing.T) {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < 150; i++ {
		fmt.Fprintf(&b, `<div><a href="/md5/%032d">Book number %d</a> pdf 1MB</div>`, i, i)
	}
	b.WriteString("</body></html>")
	server := testutil.NewIPv4Server(t, testutil.ServeHTML(b.String()))

	res := NewArchive(newTestClient(t), server.URL).Search(context.Background(), "book")
	require.NoError(t, res.Err)
	require.Len(t, res.Candidates, 100)
	assert.Equal(t, "Book number 0", res.Candidates[0].Title)
	assert.Equal(t, "Book number 99", res.Candidates[99].Title)
}

func TestArchiveSearch_NoMatchesIsNotAFault(t *testing.T) {
	server := testutil.NewIPv4Server(t, testutil.ServeHTML("<html><body><p>No files found.</p></body></html>"))

	res := NewArchive(newTestClient(t), server.URL).Search(context.Background(), "zzzz")
	require.NoError(t, res.Err)
	assert.Empty(t, res.Candidates)
}

func TestArchiveHelpers(t *testing.T) {
	assert.Equal(t, "abc", archiveMD5("/md5/abc"))
	assert.Equal(t, "abc", archiveMD5("/md5/abc/x?y=1"))
	assert.Equal(t, "", archiveMD5("/md5/"))
	assert.Equal(t, "", archiveMD5("/search"))

	assert.Equal(t, book.FormatMOBI, archiveFormat("English, MOBI, 2MB"))
	assert.Equal(t, book.FormatPDF, archiveFormat("epub or pdf"), "pdf is checked first")
	assert.Equal(t, "700 KB", archiveSize("tiny 700kb file"))
	assert.Equal(t, "1.2 GB", archiveSize("1.2 GB"))
	assert.Equal(t, "", archiveSize("no size"))
}

func newEngineServer(t *testing.T, path, fixture string, gotQuery *string) string {
	t.Helper()
	mux := http.NewServeMux()
	serve := testutil.ServeFixture(t, fixture)
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		if gotQuery != nil {
			*gotQuery = r.URL.RawQuery
		}
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		serve(w, r)
	})
	return testutil.NewIPv4Server(t, mux).URL
}

func TestDuckDuckGo_DecodesRedirectsAndFiltersExtensions(t *testing.T) {
	var q string
	base := newEngineServer(t, "/html/", "ddg_search.html", &q)

	res := NewWebSearch(newTestClient(t), DuckDuckGo(base)).Search(context.Background(), "gopl")
	require.NoError(t, res.Err)
	assert.Contains(t, q, "q=gopl+filetype%3Apdf")

	require.Len(t, res.Candidates, 2)
	assert.Equal(t, "The Go Programming Language", res.Candidates[0].Title)
	assert.Equal(t, "https://example.org/books/gopl.pdf", res.Candidates[0].Reference)
	assert.Equal(t, "duckduckgo", res.Candidates[0].Source)

	assert.Equal(t, "PDF document", res.Candidates[1].Title)
	assert.Equal(t, "https://direct.example/papers/x.pdf", res.Candidates[1].Reference)

	for _, c := range res.Candidates {
		assert.Equal(t, book.ProviderWebSearch, c.Provider)
		assert.Equal(t, c.Reference, c.DetailsURL)
		assert.Equal(t, book.ContentID(c.Reference), c.ID)
	}
}

func TestGoogle_UsesURLRedirectsAndHeadings(t *testing.T) {
	var q string
	base := newEngineServer(t, "/search", "google_search.html", &q)

	res := NewWebSearch(newTestClient(t), Google(base)).Search(context.Background(), "effective go")
	require.NoError(t, res.Err)
	assert.Contains(t, q, "client=firefox-b-d")

	require.Len(t, res.Candidates, 3)
	assert.Equal(t, "Effective Go", res.Candidates[0].Title)
	assert.Equal(t, "https://cdn.example/effective-go.pdf", res.Candidates[0].Reference)
	assert.Equal(t, "Concurrency in Go", res.Candidates[1].Title)
	assert.Equal(t, book.FormatEPUB, res.Candidates[1].Format)
	assert.Equal(t, "PDF document", res.Candidates[2].Title)
}

func TestYandex_KeepsOnlyFileLinks(t *testing.T) {
	var q string
	base := newEngineServer(t, "/search/", "yandex_search.html", &q)

	res := NewWebSearch(newTestClient(t), Yandex(base)).Search(context.Background(), "dune")
	require.NoError(t, res.Err)
	assert.Contains(t, q, "text=dune+mime%3Apdf")

	require.Len(t, res.Candidates, 1)
	assert.Equal(t, "Dune full text", res.Candidates[0].Title)
	assert.Equal(t, "https://files.example/dune.pdf", res.Candidates[0].Reference)
}

func TestWebSearch_ConcatenatesInEngineOrderAndToleratesPartialFailure(t *testing.T) {
	ddg := newEngineServer(t, "/html/", "ddg_search.html", nil)
	yandex := newEngineServer(t, "/search/", "yandex_search.html", nil)
	broken := testutil.NewIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	adapter := NewWebSearch(newTestClient(t), Yandex(yandex), Google(broken.URL), DuckDuckGo(ddg))
	res := adapter.Search(context.Background(), "dune")

	require.NoError(t, res.Err, "one healthy engine is enough")
	require.Len(t, res.Candidates, 3)
	assert.Equal(t, "yandex", res.Candidates[0].Source)
	assert.Equal(t, "duckduckgo", res.Candidates[1].Source)
	assert.Equal(t, "duckduckgo", res.Candidates[2].Source)
}

func TestWebSearch_AllEnginesFailing(t *testing.T) {
	broken := testutil.NewIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))

	adapter := NewWebSearch(newTestClient(t), DuckDuckGo(broken.URL), Google(broken.URL))
	res := adapter.Search(context.Background(), "dune")

	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "duckduckgo")
	assert.Contains(t, res.Err.Error(), "google")
	assert.Empty(t, res.Candidates)
}

func TestWebSearch_EnginesRunConcurrently(t *testing.T) {
	var inFlight, peak int32
	slow := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(100 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		_, _ = w.Write([]byte("<html></html>"))
	})
	a := testutil.NewIPv4Server(t, slow)
	b := testutil.NewIPv4Server(t, slow)
	c := testutil.NewIPv4Server(t, slow)

	adapter := NewWebSearch(newTestClient(t), DuckDuckGo(a.URL), Google(b.URL), Yandex(c.URL))
	res := adapter.Search(context.Background(), "go")
	require.NoError(t, res.Err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&peak))
}

func TestAdapter_TimeoutIsAFault(t *testing.T) {
	release := make(chan struct{})
	server := testutil.NewIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() { close(release) })

	client := newTestClient(t, httpx.WithTimeout(50*time.Millisecond))
	res := NewArchive(client, server.URL).Search(context.Background(), "slow")
	require.Error(t, res.Err)
	assert.Empty(t, res.Candidates)
}

func TestAdapter_BlankQueryReturnsNothing(t *testing.T) {
	var calls int32
	server := testutil.NewIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))

	res := NewCatalogue(newTestClient(t), server.URL).Search(context.Background(), "   ")
	assert.NoError(t, res.Err)
	assert.Empty(t, res.Candidates)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestEngineByName(t *testing.T) {
	for _, name := range DefaultEngines {
		e, err := EngineByName(name, "")
		require.NoError(t, err)
		assert.Equal(t, name, e.Name)
		assert.NotEmpty(t, e.BaseURL)
	}

	e, err := EngineByName("DDG", "http://127.0.0.1:1/")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:1", e.BaseURL)

	_, err = EngineByName("altavista", "")
	require.Error(t, err)
}
