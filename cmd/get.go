package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/lepinkainen/folio/internal/book"
	"github.com/lepinkainen/folio/internal/config"
)

// GetCmd downloads a single reference without searching first, e.g. one
// copied from `folio search -o json`.
type GetCmd struct {
	Provider  string `required:"" help:"Provider of the reference (catalogue, archive, websearch)"`
	Reference string `required:"" help:"Mirror, item or file URL"`
	Title     string `help:"Title used for the file name"`
	Type      string `name:"type" short:"t" default:"pdf" help:"File format used for the extension"`
}

func (g *GetCmd) Run(cfg config.Config) error {
	provider, err := book.ParseProvider(g.Provider)
	if err != nil {
		return err
	}
	format := book.ParseFormat(g.Type)
	if !format.Supported() {
		return fmt.Errorf("unsupported format %q", g.Type)
	}

	app, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	ref := strings.TrimSpace(g.Reference)
	c := book.Candidate{
		ID:         book.ContentID(ref),
		Title:      strings.TrimSpace(g.Title),
		Format:     format,
		Provider:   provider,
		Source:     "manual",
		Reference:  ref,
		DetailsURL: ref,
	}

	outcome, err := app.Downloads.Download(ctx, c)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(stdout, "Downloaded %s from %s (%d hops)\n", outcome.FileName, outcome.URL, outcome.Hops)
	return nil
}
