package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/lepinkainen/folio/internal/book"
	"github.com/lepinkainen/folio/internal/httpx"
)

const (
	DefaultDuckDuckGoURL = "https://html.duckduckgo.com"
	DefaultGoogleURL     = "https://www.google.com"
	DefaultYandexURL     = "https://yandex.com"
)

// DefaultEngines is the engine order used when none is configured.
var DefaultEngines = []string{"duckduckgo", "google", "yandex"}

// hit is a raw result link before it becomes a candidate.
type hit struct {
	target string
	title  string
}

// Engine is one web search backend: how to build its query URL and how to
// pull result links out of its markup.
type Engine struct {
	Name    string
	BaseURL string

	searchURL func(base, query string) string
	extract   func(page *httpx.Page) []hit
}

// DuckDuckGo queries the JavaScript-free HTML endpoint. Result links are
// wrapped in a redirect whose uddg parameter carries the real target.
func DuckDuckGo(baseURL string) Engine {
	return Engine{
		Name:    "duckduckgo",
		BaseURL: baseOrDefault(baseURL, DefaultDuckDuckGoURL),
		searchURL: func(base, query string) string {
			return base + "/html/?q=" + url.QueryEscape(query+" filetype:pdf")
		},
		extract: func(page *httpx.Page) []hit {
			var hits []hit
			page.Doc.Find(".result__a").Each(func(_ int, s *goquery.Selection) {
				href, _ := s.Attr("href")
				target := page.Resolve(href)
				if strings.Contains(href, "duckduckgo.com/l/") {
					target = httpx.QueryParam(href, "uddg")
				}
				hits = append(hits, hit{target: target, title: s.Text()})
			})
			return hits
		},
	}
}

// Google scrapes the basic results page, where every organic result is an
// /url?q=<target> redirect and the visible title sits in an h3.
func Google(baseURL string) Engine {
	return Engine{
		Name:    "google",
		BaseURL: baseOrDefault(baseURL, DefaultGoogleURL),
		searchURL: func(base, query string) string {
			v := url.Values{}
			v.Set("q", query+" filetype:pdf")
			v.Set("client", "firefox-b-d")
			return base + "/search?" + v.Encode()
		},
		extract: func(page *httpx.Page) []hit {
			var hits []hit
			page.Doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
				href, _ := s.Attr("href")
				if !strings.HasPrefix(href, "/url?q=") {
					return
				}
				title := s.Find("h3").First().Text()
				if strings.TrimSpace(title) == "" {
					title = s.Text()
				}
				hits = append(hits, hit{target: httpx.QueryParam(href, "q"), title: title})
			})
			return hits
		},
	}
}

// Yandex links straight to its results; only links ending in a supported
// extension survive the common filtering.
func Yandex(baseURL string) Engine {
	return Engine{
		Name:    "yandex",
		BaseURL: baseOrDefault(baseURL, DefaultYandexURL),
		searchURL: func(base, query string) string {
			return base + "/search/?text=" + url.QueryEscape(query+" mime:pdf")
		},
		extract: func(page *httpx.Page) []hit {
			var hits []hit
			page.Doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
				href, _ := s.Attr("href")
				hits = append(hits, hit{target: page.Resolve(href), title: s.Text()})
			})
			return hits
		},
	}
}

// EngineByName builds a known engine. An empty baseURL selects the public site.
func EngineByName(name, baseURL string) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "duckduckgo", "ddg":
		return DuckDuckGo(baseURL), nil
	case "google":
		return Google(baseURL), nil
	case "yandex":
		return Yandex(baseURL), nil
	}
	return Engine{}, fmt.Errorf("unknown search engine %q", name)
}

// searchWeb queries every engine concurrently and concatenates the results
// in engine order. It reports a fault only when no engine succeeded.
func (a Adapter) searchWeb(ctx context.Context, query string) Result {
	if len(a.engines) == 0 {
		return Result{}
	}

	perEngine := make([][]book.Candidate, len(a.engines))
	errs := make([]error, len(a.engines))

	var g errgroup.Group
	for i, e := range a.engines {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("%s: panic while scraping: %v", e.Name, r)
				}
			}()
			perEngine[i], errs[i] = a.searchEngine(ctx, e, query)
			return nil
		})
	}
	_ = g.Wait()

	res := Result{Candidates: lo.Flatten(perEngine)}
	failed := lo.Compact(errs)
	switch {
	case len(failed) == len(a.engines):
		res.Err = a.fetchError(errors.Join(failed...))
	case len(failed) > 0:
		slog.Debug("Some search engines failed", "source", a.Name, "failed", len(failed), "error", errors.Join(failed...))
	}
	return res
}

func (a Adapter) searchEngine(ctx context.Context, e Engine, query string) ([]book.Candidate, error) {
	header := http.Header{}
	header.Set("User-Agent", a.client.UserAgent())

	page, err := a.client.Document(ctx, e.searchURL(e.BaseURL, query), header)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.Name, err)
	}

	hits := lo.UniqBy(e.extract(page), func(h hit) string { return h.target })
	return lo.FilterMap(hits, func(h hit, _ int) (book.Candidate, bool) {
		return webCandidate(e.Name, h)
	}), nil
}

// webCandidate keeps only http(s) targets whose path ends in a supported
// extension. The target is already the file, so Reference equals DetailsURL.
func webCandidate(engine string, h hit) (book.Candidate, bool) {
	u, err := url.Parse(strings.TrimSpace(h.target))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return book.Candidate{}, false
	}
	format := book.FormatFromPath(u.Path)
	if !format.Supported() {
		return book.Candidate{}, false
	}

	target := u.String()
	title := cleanText(h.title)
	if !book.ValidTitle(title) {
		title = format.String() + " document"
	}

	return book.Candidate{
		ID:         book.ContentID(target),
		Title:      title,
		Format:     format,
		Provider:   book.ProviderWebSearch,
		Source:     engine,
		Reference:  target,
		DetailsURL: target,
	}, true
}
