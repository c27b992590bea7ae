package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/lepinkainen/folio/internal/book"
	"github.com/lepinkainen/folio/internal/config"
	"github.com/lepinkainen/folio/internal/csvutil"
	ferrors "github.com/lepinkainen/folio/internal/errors"
)

var batchHeader = []string{"provider", "reference", "title", "format"}

// BatchCmd downloads every reference listed in a CSV file with the columns
// provider, reference, title and format. Title and format are optional.
type BatchCmd struct {
	Input     string `arg:"" type:"existingfile" help:"CSV file of references"`
	KeepGoing bool   `default:"true" negatable:"" help:"Continue after a failed download"`
}

func parseBatchRecord(record []string) (book.Candidate, error) {
	field := func(i int) string {
		if i < len(record) {
			return strings.TrimSpace(record[i])
		}
		return ""
	}

	provider, err := book.ParseProvider(field(0))
	if err != nil {
		return book.Candidate{}, err
	}
	ref := field(1)
	if ref == "" {
		return book.Candidate{}, errors.New("missing reference")
	}
	format := book.FormatPDF
	if f := field(3); f != "" {
		if format = book.ParseFormat(f); !format.Supported() {
			return book.Candidate{}, fmt.Errorf("unsupported format %q", f)
		}
	}

	return book.Candidate{
		ID:         book.ContentID(ref),
		Title:      field(2),
		Format:     format,
		Provider:   provider,
		Source:     "batch",
		Reference:  ref,
		DetailsURL: ref,
	}, nil
}

func (b *BatchCmd) Run(cfg config.Config) error {
	cands, err := csvutil.ProcessFile(b.Input, parseBatchRecord, csvutil.ProcessorOptions{
		Header:      batchHeader,
		MinFields:   2,
		SkipInvalid: b.KeepGoing,
	})
	if err != nil {
		return err
	}

	app, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var failed int
	for i, c := range cands {
		outcome, err := app.Downloads.Download(ctx, c)
		if err != nil {
			if ctx.Err() != nil {
				return ferrors.NewStopProcessingError(fmt.Sprintf("interrupted after %d of %d downloads", i, len(cands)))
			}
			if !b.KeepGoing {
				return err
			}
			failed++
			slog.Warn("Download failed", "entry", i+1, "reference", c.Reference, "error", err)
			continue
		}
		_, _ = fmt.Fprintf(stdout, "Downloaded %s from %s\n", outcome.FileName, outcome.URL)
	}

	slog.Info("Batch complete", "total", len(cands), "failed", failed)
	if failed > 0 && failed == len(cands) {
		return fmt.Errorf("all %d downloads failed", failed)
	}
	return nil
}
