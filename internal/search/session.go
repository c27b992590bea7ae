package search

import (
	"context"
	"errors"
	"sync"

	"github.com/lepinkainen/folio/internal/book"
)

// ErrSuperseded is returned by Session.Search when a newer query started
// before this one finished. Its results are discarded.
var ErrSuperseded = errors.New("search superseded by a newer query")

// Session runs interactive searches where only the latest query matters.
// Starting a search cancels the one in flight.
type Session struct {
	agg *Aggregator

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

// NewSession wraps an Aggregator.
func NewSession(agg *Aggregator) *Session {
	return &Session{agg: agg}
}

// Search aggregates query, unless a later call to Search overtakes it.
func (s *Session) Search(ctx context.Context, query string) ([]book.Candidate, error) {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.gen++
	gen := s.gen
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	cands, err := s.agg.Aggregate(ctx, query)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return nil, ErrSuperseded
	}
	s.cancel = nil
	return cands, err
}

// Close cancels the search in flight, if any.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.gen++
}
