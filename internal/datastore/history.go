package datastore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	// HistoryDatabase is the database name used by remote mirrors.
	HistoryDatabase = "folio"
	// HistoryTable holds one row per dispatched download.
	HistoryTable = "downloads"
)

// HistorySchema creates the downloads table.
const HistorySchema = `CREATE TABLE IF NOT EXISTS downloads (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL,
	provider TEXT NOT NULL,
	source TEXT,
	format TEXT,
	reference TEXT,
	url TEXT NOT NULL,
	file TEXT,
	dispatched_at TEXT NOT NULL
)`

// HistoryEntry is a single dispatched download.
type HistoryEntry struct {
	Title        string    `json:"title" yaml:"title"`
	Provider     string    `json:"provider" yaml:"provider"`
	Source       string    `json:"source" yaml:"source"`
	Format       string    `json:"format" yaml:"format"`
	Reference    string    `json:"reference" yaml:"reference"`
	URL          string    `json:"url" yaml:"url"`
	File         string    `json:"file" yaml:"file"`
	DispatchedAt time.Time `json:"dispatched_at" yaml:"dispatched_at"`
}

func (e HistoryEntry) record() map[string]any {
	if e.DispatchedAt.IsZero() {
		e.DispatchedAt = time.Now()
	}
	return Row(e)
}

// History fans history rows out to every configured store. The first store
// is the primary one; failures in the rest are only logged.
type History struct {
	stores []Store
}

// NewHistory connects every store and creates the downloads table.
func NewHistory(primary Store, mirrors ...Store) (*History, error) {
	stores := append([]Store{primary}, mirrors...)
	h := &History{}
	for i, s := range stores {
		if s == nil {
			continue
		}
		if err := s.Connect(); err != nil {
			if i == 0 {
				_ = h.Close()
				return nil, fmt.Errorf("connect history store: %w", err)
			}
			slog.Warn("History mirror unavailable", "error", err)
			continue
		}
		if err := s.CreateTable(HistorySchema); err != nil {
			_ = s.Close()
			if i == 0 {
				_ = h.Close()
				return nil, fmt.Errorf("create history table: %w", err)
			}
			slog.Warn("History mirror unavailable", "error", err)
			continue
		}
		h.stores = append(h.stores, s)
	}
	return h, nil
}

// Record stores the entry. Nil History is a valid no-op recorder.
func (h *History) Record(ctx context.Context, entry HistoryEntry) error {
	if h == nil || len(h.stores) == 0 {
		return nil
	}
	rows := []map[string]any{entry.record()}
	if err := h.stores[0].BatchInsert(ctx, HistoryDatabase, HistoryTable, rows); err != nil {
		return fmt.Errorf("record download: %w", err)
	}
	for _, s := range h.stores[1:] {
		if err := s.BatchInsert(ctx, HistoryDatabase, HistoryTable, rows); err != nil {
			slog.Warn("Failed to mirror download history", "error", err)
		}
	}
	return nil
}

// Recent returns the newest entries from the primary store when it can be
// queried.
func (h *History) Recent(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if h == nil || len(h.stores) == 0 {
		return nil, nil
	}
	q, ok := h.stores[0].(interface {
		RecentDownloads(context.Context, int) ([]HistoryEntry, error)
	})
	if !ok {
		return nil, errors.New("history store does not support queries")
	}
	return q.RecentDownloads(ctx, limit)
}

// Close closes every store.
func (h *History) Close() error {
	if h == nil {
		return nil
	}
	var errs []error
	for _, s := range h.stores {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
