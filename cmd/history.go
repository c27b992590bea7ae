package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/lepinkainen/folio/internal/config"
)

// HistoryCmd lists the most recent downloads.
type HistoryCmd struct {
	Limit int `short:"n" default:"20" help:"Number of entries to show"`
}

func (h *HistoryCmd) Run(cfg config.Config) error {
	history, err := openHistory(cfg.History)
	if err != nil {
		return err
	}
	defer func() { _ = history.Close() }()

	entries, err := history.Recent(context.Background(), h.Limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		_, _ = fmt.Fprintln(stdout, "No downloads yet.")
		return nil
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "WHEN\tFORMAT\tTITLE\tPROVIDER\tFILE")
	for _, e := range entries {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.DispatchedAt.Local().Format("2006-01-02 15:04"), e.Format, ellipsis(e.Title, 50), e.Provider, e.File)
	}
	return tw.Flush()
}
