package datastore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRow(t *testing.T) {
	type Embedded struct {
		Source string
	}
	type sample struct {
		Embedded
		Title     string
		ISBNCode  string
		Authors   []string
		Skipped   string `db:"-"`
		Named     int    `db:"custom,omitempty"`
		Added     time.Time
		Optional  *string
		hidden    string
		HTTPProxy string
	}

	at := time.Date(2024, 5, 6, 7, 8, 9, 0, time.FixedZone("EEST", 3*3600))
	row := Row(sample{
		Embedded:  Embedded{Source: "libgen.rs"},
		Title:     "Dune",
		ISBNCode:  "978",
		Authors:   []string{"A", "B"},
		Skipped:   "x",
		Named:     3,
		Added:     at,
		hidden:    "h",
		HTTPProxy: "p",
	})

	assert.Equal(t, map[string]any{
		"source":     "libgen.rs",
		"title":      "Dune",
		"isbn_code":  "978",
		"authors":    "A, B",
		"custom":     3,
		"added":      "2024-05-06T04:08:09Z",
		"optional":   nil,
		"http_proxy": "p",
	}, row)
}

func TestRow_NilPointer(t *testing.T) {
	var e *HistoryEntry
	assert.Empty(t, Row(e))
}

func TestHistoryEntryRecordColumns(t *testing.T) {
	row := HistoryEntry{Title: "Dune", URL: "https://x"}.record()

	assert.Len(t, row, 8)
	assert.Equal(t, "https://x", row["url"])
	assert.NotEmpty(t, row["dispatched_at"])
}
