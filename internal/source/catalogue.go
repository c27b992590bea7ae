package source

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/PuerkitoBio/goquery"
	"github.com/samber/lo"

	"github.com/lepinkainen/folio/internal/book"
	"github.com/lepinkainen/folio/internal/httpx"
)

// Column layout of the catalogue results table.
const (
	colID = iota
	colAuthors
	colTitle
	colPublisher
	colYear
	colPages
	colLanguage
	colSize
	colExtension
	colMirror

	minCatalogueColumns = colExtension + 1
)

func (a Adapter) catalogueSearchURL(query string) string {
	v := url.Values{}
	v.Set("req", query)
	v.Set("res", strconv.Itoa(maxResultsPerPage))
	v.Set("column", "def")
	v.Set("sort", "year")
	v.Set("sortmode", "DESC")
	return a.BaseURL + "/search.php?" + v.Encode()
}

func (a Adapter) searchCatalogue(ctx context.Context, query string) Result {
	page, err := a.client.Document(ctx, a.catalogueSearchURL(query), nil)
	if err != nil {
		return Result{Err: a.fetchError(err)}
	}

	if page.Doc.Find("table.c").Length() == 0 {
		return Result{Err: a.parseError(fmt.Errorf("%w: results table not found", ErrUnexpectedLayout))}
	}

	var out []book.Candidate
	page.Doc.Find("table.c > tbody > tr:not(:first-child)").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		if c, ok := parseCatalogueRow(page, row); ok {
			out = append(out, c)
		}
		return len(out) < maxResultsPerPage
	})
	return Result{Candidates: out}
}

// parseCatalogueRow extracts one table row. Rows that are short, carry an
// unsupported extension, lack a usable title or have no mirror link are
// skipped rather than failing the page.
func parseCatalogueRow(page *httpx.Page, row *goquery.Selection) (book.Candidate, bool) {
	cols := row.ChildrenFiltered("td")
	if cols.Length() < minCatalogueColumns {
		return book.Candidate{}, false
	}

	format := book.ParseFormat(cleanText(cols.Eq(colExtension).Text()))
	if !format.Supported() {
		return book.Candidate{}, false
	}

	titleLink := cols.Eq(colTitle).Find("a[id]").First()
	if titleLink.Length() == 0 {
		titleLink = cols.Eq(colTitle).Find("a").First()
	}
	if titleLink.Length() == 0 {
		return book.Candidate{}, false
	}
	// The title anchor also wraps edition and ISBN details in <font>/<i>.
	title := cleanText(titleLink.Clone().Find("font, i, br").Remove().End().Text())
	if !book.ValidTitle(title) {
		return book.Candidate{}, false
	}

	if cols.Length() <= colMirror {
		return book.Candidate{}, false
	}
	href, ok := cols.Eq(colMirror).Find("a[href]").First().Attr("href")
	if !ok {
		return book.Candidate{}, false
	}
	mirror := page.Resolve(href)
	if mirror == "" {
		return book.Candidate{}, false
	}

	id, err := strconv.ParseInt(cleanText(cols.Eq(colID).Text()), 10, 64)
	if err != nil {
		id = book.ContentID(mirror)
	}

	authors := lo.Filter(
		cols.Eq(colAuthors).Find("a").Map(func(_ int, s *goquery.Selection) string { return cleanText(s.Text()) }),
		func(s string, _ int) bool { return s != "" },
	)
	if len(authors) == 0 {
		if text := cleanText(cols.Eq(colAuthors).Text()); text != "" {
			authors = []string{text}
		}
	}

	return book.Candidate{
		ID:         id,
		Title:      title,
		Authors:    authors,
		Format:     format,
		Size:       cleanText(cols.Eq(colSize).Text()),
		Provider:   book.ProviderCatalogue,
		Source:     "catalogue",
		Reference:  mirror,
		DetailsURL: mirror,
	}, true
}
