package source

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/lepinkainen/folio/internal/book"
	"github.com/lepinkainen/folio/internal/httpx"
)

var sizePattern = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(MB|KB|GB)`)

// Order matters: the first extension mentioned near the link wins.
var archiveFormatOrder = []book.Format{book.FormatPDF, book.FormatEPUB, book.FormatMOBI, book.FormatAZW3}

func (a Adapter) archiveSearchURL(query string) string {
	return a.BaseURL + "/search?q=" + url.QueryEscape(query)
}

func (a Adapter) searchArchive(ctx context.Context, query string) Result {
	page, err := a.client.Document(ctx, a.archiveSearchURL(query), nil)
	if err != nil {
		return Result{Err: a.fetchError(err)}
	}

	var out []book.Candidate
	links := page.Doc.Find("a[href^='/md5/']")
	links.Slice(0, min(links.Length(), maxResultsPerPage)).Each(func(_ int, link *goquery.Selection) {
		if c, ok := parseArchiveLink(page, link); ok {
			out = append(out, c)
		}
	})
	return Result{Candidates: out}
}

func parseArchiveLink(page *httpx.Page, link *goquery.Selection) (book.Candidate, bool) {
	title := cleanText(link.Text())
	if !book.ValidTitle(title) {
		return book.Candidate{}, false
	}

	href, _ := link.Attr("href")
	md5 := archiveMD5(href)
	if md5 == "" {
		return book.Candidate{}, false
	}
	details := page.Resolve(href)
	if details == "" {
		return book.Candidate{}, false
	}

	around := link.Parent().Text()
	return book.Candidate{
		ID:         book.ContentID(md5),
		Title:      title,
		Format:     archiveFormat(around),
		Size:       archiveSize(around),
		Provider:   book.ProviderArchive,
		Source:     "archive",
		Reference:  details,
		DetailsURL: details,
	}, true
}

// archiveMD5 returns the path segment following /md5/.
func archiveMD5(href string) string {
	rest, ok := strings.CutPrefix(href, "/md5/")
	if !ok {
		return ""
	}
	if i := strings.IndexAny(rest, "/?#"); i >= 0 {
		rest = rest[:i]
	}
	return strings.TrimSpace(rest)
}

func archiveFormat(text string) book.Format {
	text = strings.ToLower(text)
	for _, f := range archiveFormatOrder {
		if strings.Contains(text, f.Extension()) {
			return f
		}
	}
	return book.FormatPDF
}

func archiveSize(text string) string {
	m := sizePattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1] + " " + strings.ToUpper(m[2])
}
