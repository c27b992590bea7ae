// Package csvutil reads CSV input into typed records.
package csvutil

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// ProcessorOptions configures CSV processing behavior.
type ProcessorOptions struct {
	// Header lists the expected column names. When the first record matches
	// it case-insensitively it is skipped; otherwise it is parsed as data.
	Header []string

	// MinFields rejects records with fewer fields.
	MinFields int

	// SkipInvalid logs and skips bad records instead of failing.
	SkipInvalid bool
}

// ProcessFile opens filename and hands it to Process.
func ProcessFile[T any](filename string, parser func([]string) (T, error), opts ProcessorOptions) ([]T, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return Process(f, parser, opts)
}

// Process parses every record of r with parser. Lines starting with # are
// comments.
func Process[T any](r io.Reader, parser func([]string) (T, error), opts ProcessorOptions) ([]T, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var items []T
	for first := true; ; first = false {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV: %w", err)
		}
		if first && isHeader(record, opts.Header) {
			continue
		}

		line, _ := reader.FieldPos(0)
		if len(record) < opts.MinFields {
			err = fmt.Errorf("expected at least %d fields, got %d", opts.MinFields, len(record))
		} else {
			var item T
			if item, err = parser(record); err == nil {
				items = append(items, item)
				continue
			}
		}

		if !opts.SkipInvalid {
			return nil, fmt.Errorf("invalid record on line %d: %w", line, err)
		}
		slog.Warn("Skipping invalid record", "line", line, "error", err)
	}
	return items, nil
}

func isHeader(record, header []string) bool {
	if len(header) == 0 || len(record) < len(header) {
		return false
	}
	for i, name := range header {
		if !strings.EqualFold(strings.TrimSpace(record[i]), name) {
			return false
		}
	}
	return true
}
