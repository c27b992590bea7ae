// Package httpx is the shared HTTP layer for every scraper and for the
// downloader: user agent rotation, bounded retries, proxy support, per-host
// politeness and HTML parsing.
package httpx

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/samber/lo"

	ferrors "github.com/lepinkainen/folio/internal/errors"
	"github.com/lepinkainen/folio/internal/ratelimit"
)

const (
	DefaultTimeout       = 15 * time.Second
	DefaultRetryMax      = 1
	defaultRatePerSecond = 2
	defaultBurst         = 2
)

// Paths that search engines redirect to when they want a human.
var captchaMarkers = []string{"/sorry/", "showcaptcha", "/captcha"}

// HTTPDoer is an interface for making HTTP requests.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Client performs rate limited GET requests.
type Client struct {
	doer    HTTPDoer
	limits  *ratelimit.Set
	ua      *uaPool
	timeout time.Duration
}

type settings struct {
	doer       HTTPDoer
	timeout    time.Duration
	retryMax   int
	proxyURL   string
	userAgents []string
	rps        int
	burst      int
}

// Option is a functional option for configuring the Client.
type Option func(*settings)

// WithHTTPClient replaces the transport stack entirely, mostly for tests.
func WithHTTPClient(d HTTPDoer) Option {
	return func(s *settings) {
		if d != nil {
			s.doer = d
		}
	}
}

// WithTimeout sets the per-page timeout used by Document.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithRetryMax sets how many times a failed GET is retried.
func WithRetryMax(n int) Option {
	return func(s *settings) {
		if n >= 0 {
			s.retryMax = n
		}
	}
}

// WithProxy routes all requests through an http, https or socks5 proxy.
func WithProxy(proxyURL string) Option {
	return func(s *settings) {
		s.proxyURL = proxyURL
	}
}

// WithUserAgents sets the user agent pool.
func WithUserAgents(uas []string) Option {
	return func(s *settings) {
		if len(uas) > 0 {
			s.userAgents = uas
		}
	}
}

// WithRateLimit sets the per-host request rate. Zero disables limiting.
func WithRateLimit(requestsPerSecond, burst int) Option {
	return func(s *settings) {
		s.rps = requestsPerSecond
		s.burst = burst
	}
}

// New builds a Client. It fails only on an invalid proxy configuration.
func New(opts ...Option) (*Client, error) {
	s := settings{
		timeout:  DefaultTimeout,
		retryMax: DefaultRetryMax,
		rps:      defaultRatePerSecond,
		burst:    defaultBurst,
	}
	for _, opt := range opts {
		opt(&s)
	}

	ua := newUAPool(s.userAgents)
	doer := s.doer
	if doer == nil {
		base, err := newBaseTransport(s.proxyURL)
		if err != nil {
			return nil, err
		}
		// No overall client timeout: downloads stream for as long as they
		// need, page fetches carry their own deadline.
		doer = &http.Client{
			Transport: &Transport{Base: base, ua: ua, RetryMax: s.retryMax},
		}
	}

	return &Client{
		doer:    doer,
		limits:  ratelimit.NewSet(s.rps, s.burst),
		ua:      ua,
		timeout: s.timeout,
	}, nil
}

// Timeout is the per-page deadline applied by Document.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// UserAgent picks a user agent from the pool.
func (c *Client) UserAgent() string {
	return c.ua.random()
}

// Open issues a GET and returns the response when the status is 2xx. The
// caller owns the body. Header values override the defaults.
func (c *Client) Open(ctx context.Context, rawURL string, header http.Header) (*http.Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme %q in %s", u.Scheme, rawURL)
	}

	if err := c.limits.Wait(ctx, u.Host); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.7")
	for k, vs := range header {
		req.Header[k] = vs
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.ua.random())
	}

	slog.Debug("HTTP GET", "url", u.String())
	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", u.String(), err)
	}

	final := u
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL
	}
	if err := checkResponse(resp, final); err != nil {
		_ = resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

// Page is a fetched HTML document together with the URL it was served from.
type Page struct {
	Doc *goquery.Document
	URL *url.URL
}

// Resolve makes href absolute against the page URL.
func (p *Page) Resolve(href string) string {
	return ResolveURL(p.URL, href)
}

// Document fetches rawURL within the client timeout and parses it as HTML.
func (c *Client) Document(ctx context.Context, rawURL string, header http.Header) (*Page, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.Open(ctx, rawURL, header)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML from %s: %w", rawURL, err)
	}

	pageURL, _ := url.Parse(rawURL)
	if resp.Request != nil && resp.Request.URL != nil {
		pageURL = resp.Request.URL
	}
	return &Page{Doc: doc, URL: pageURL}, nil
}

func checkResponse(resp *http.Response, final *url.URL) error {
	where := final.Path + "?" + final.RawQuery
	if lo.ContainsBy(captchaMarkers, func(m string) bool { return strings.Contains(where, m) }) {
		return ferrors.NewBlockedError(final.String(), "captcha page")
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	statusErr := &StatusError{
		URL:        final.String(),
		StatusCode: resp.StatusCode,
		Location:   resp.Header.Get("Location"),
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		rl := ferrors.NewRateLimitErrorWithRetry("rate limited by "+final.Host, retryAfter(resp.Header))
		return fmt.Errorf("%w: %w", statusErr, rl)
	}
	return statusErr
}

func retryAfter(h http.Header) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d.Round(time.Second)
		}
	}
	return 0
}
