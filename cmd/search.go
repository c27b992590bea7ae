package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/lepinkainen/folio/internal/book"
	"github.com/lepinkainen/folio/internal/config"
	"github.com/lepinkainen/folio/internal/filter"
	"github.com/lepinkainen/folio/internal/search"
	"github.com/lepinkainen/folio/internal/tui"
)

// selectCandidate is swapped out in tests.
var selectCandidate = tui.Select

// SearchCmd runs a fan-out search and prints or picks from the results.
type SearchCmd struct {
	Query       []string `arg:"" help:"Search terms"`
	Output      string   `short:"o" enum:"table,json,yaml" default:"table" help:"Output format (table, json, yaml)"`
	File        string   `help:"Write output to this file instead of stdout" type:"path"`
	Interactive bool     `short:"i" help:"Pick a result and download it"`
	Report      bool     `help:"Print a per-source summary after the results"`
}

// searchOutput is the JSON and YAML document.
type searchOutput struct {
	Query      string           `json:"query" yaml:"query"`
	Count      int              `json:"count" yaml:"count"`
	Candidates []book.Candidate `json:"candidates" yaml:"candidates"`
	Sources    []sourceReport   `json:"sources,omitempty" yaml:"sources,omitempty"`
}

type sourceReport struct {
	Source string `json:"source" yaml:"source"`
	Count  int    `json:"count" yaml:"count"`
	Error  string `json:"error,omitempty" yaml:"error,omitempty"`
}

func (s *SearchCmd) Run(cfg config.Config) error {
	query := strings.Join(s.Query, " ")
	if strings.TrimSpace(query) == "" {
		return search.ErrEmptyQuery
	}

	app, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cands, reports, err := app.Aggregator.AggregateTrace(ctx, query)
	if err != nil {
		return err
	}
	kept := filter.Apply(cands, app.Filter)
	slog.Info("Search complete", "query", query, "found", len(cands), "shown", len(kept))

	if s.Interactive {
		return s.pickAndDownload(ctx, app, query, kept)
	}

	out := stdout
	if s.File != "" {
		f, err := os.Create(s.File)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer func() { _ = f.Close() }()
		out = f
	}

	doc := searchOutput{Query: query, Count: len(kept), Candidates: kept}
	if s.Report {
		doc.Sources = lo.Map(reports, func(r search.Report, _ int) sourceReport {
			sr := sourceReport{Source: r.Source, Count: r.Count}
			if r.Err != nil {
				sr.Error = r.Err.Error()
			}
			return sr
		})
	}
	return writeSearch(out, s.Output, doc)
}

func (s *SearchCmd) pickAndDownload(ctx context.Context, app *App, query string, cands []book.Candidate) error {
	if len(cands) == 0 {
		slog.Info("No results to choose from", "query", query)
		return nil
	}

	res, err := selectCandidate(query, cands)
	if err != nil {
		return fmt.Errorf("selection failed: %w", err)
	}
	if res.Action != tui.ActionSelected || res.Selection == nil {
		slog.Info("Nothing selected")
		return nil
	}

	outcome, err := app.Downloads.Download(ctx, *res.Selection)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(stdout, "Downloaded %s from %s\n", outcome.FileName, outcome.URL)
	return nil
}

func writeSearch(w io.Writer, format string, doc searchOutput) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	case "table", "":
		return writeTable(w, doc)
	}
	return errors.New("unknown output format " + format)
}

func writeTable(w io.Writer, doc searchOutput) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "#\tFORMAT\tTITLE\tAUTHORS\tSIZE\tSOURCE")
	for i, c := range doc.Candidates {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			i+1, c.Format, ellipsis(c.Title, 60), ellipsis(c.AuthorLine(), 30), c.Size, c.Source)
	}
	for _, r := range doc.Sources {
		status := "ok"
		if r.Error != "" {
			status = r.Error
		}
		_, _ = fmt.Fprintf(tw, "\t%s\t%d results\t%s\t\t\n", r.Source, r.Count, status)
	}
	return tw.Flush()
}

func ellipsis(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
