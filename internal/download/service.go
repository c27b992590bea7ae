package download

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lepinkainen/folio/internal/book"
	"github.com/lepinkainen/folio/internal/datastore"
	"github.com/lepinkainen/folio/internal/resolve"
)

// Resolver turns a candidate into a direct URL. *resolve.Resolver satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, c book.Candidate) resolve.Result
}

// Recorder stores dispatched downloads. *datastore.History satisfies it.
type Recorder interface {
	Record(ctx context.Context, entry datastore.HistoryEntry) error
}

// Outcome describes a successful dispatch.
type Outcome struct {
	URL      string `json:"url" yaml:"url"`
	FileName string `json:"file_name" yaml:"file_name"`
	Hops     int    `json:"hops" yaml:"hops"`
}

// Service resolves candidates and hands the result to a Dispatcher.
type Service struct {
	resolver   Resolver
	dispatcher Dispatcher
	history    Recorder
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithHistory records every successful dispatch.
func WithHistory(r Recorder) Option {
	return func(s *Service) {
		s.history = r
	}
}

// NewService builds a Service.
func NewService(resolver Resolver, dispatcher Dispatcher, opts ...Option) *Service {
	s := &Service{
		resolver:   resolver,
		dispatcher: dispatcher,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Download resolves c and, only when resolution succeeds, enqueues the
// terminal URL under the candidate's suggested file name. The returned error
// wraps the resolve failure, so errors.Is works with the resolve sentinels.
func (s *Service) Download(ctx context.Context, c book.Candidate) (Outcome, error) {
	res := s.resolver.Resolve(ctx, c)
	if !res.OK() {
		if res.Err == nil {
			res.Err = resolve.ErrNoDownloadLink
		}
		slog.Warn("Could not resolve download link", "title", c.Title, "provider", c.Provider, "error", res.Err)
		return Outcome{Hops: res.Hops}, fmt.Errorf("resolve %q: %w", c.Title, res.Err)
	}

	out := Outcome{URL: res.URL, FileName: c.SuggestedFileName(), Hops: res.Hops}
	if err := s.dispatcher.Enqueue(ctx, out.URL, out.FileName); err != nil {
		return out, fmt.Errorf("dispatch %q: %w", c.Title, err)
	}
	slog.Debug("Dispatched download", "title", c.Title, "url", out.URL, "hops", out.Hops)

	if s.history != nil {
		entry := datastore.HistoryEntry{
			Title:        c.Title,
			Provider:     c.Provider.String(),
			Source:       c.Source,
			Format:       c.Format.String(),
			Reference:    c.Reference,
			URL:          out.URL,
			File:         out.FileName,
			DispatchedAt: s.now(),
		}
		// The file is already on its way; a history failure is not fatal.
		if err := s.history.Record(ctx, entry); err != nil {
			slog.Warn("Failed to record download history", "title", c.Title, "error", err)
		}
	}
	return out, nil
}
