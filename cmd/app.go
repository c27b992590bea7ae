package cmd

import (
	"fmt"
	"log/slog"

	"github.com/lepinkainen/folio/internal/config"
	"github.com/lepinkainen/folio/internal/datastore"
	"github.com/lepinkainen/folio/internal/download"
	"github.com/lepinkainen/folio/internal/filter"
	"github.com/lepinkainen/folio/internal/httpx"
	"github.com/lepinkainen/folio/internal/resolve"
	"github.com/lepinkainen/folio/internal/search"
	"github.com/lepinkainen/folio/internal/source"
)

// App holds the wired components used by the commands.
type App struct {
	Config     config.Config
	Client     *httpx.Client
	Aggregator *search.Aggregator
	Resolver   *resolve.Resolver
	Downloads  *download.Service
	History    *datastore.History
	Filter     filter.Options
}

// newApp is swapped out in tests.
var newApp = buildApp

func buildApp(cfg config.Config) (*App, error) {
	client, err := httpx.New(
		httpx.WithTimeout(cfg.HTTP.Timeout),
		httpx.WithRetryMax(cfg.HTTP.Retries),
		httpx.WithProxy(cfg.HTTP.Proxy),
		httpx.WithUserAgents(cfg.HTTP.UserAgents),
		httpx.WithRateLimit(cfg.HTTP.Rate, cfg.HTTP.Burst),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	sources, err := buildSources(client, cfg.Sources)
	if err != nil {
		return nil, err
	}

	history, err := openHistory(cfg.History)
	if err != nil {
		return nil, err
	}

	resolver := resolve.New(client,
		resolve.WithMaxHops(cfg.Resolve.MaxHops),
		resolve.WithCatalogueMarker(cfg.Resolve.CatalogueMarker),
		resolve.WithFallbackLabels(cfg.Resolve.FallbackLabels...),
	)
	dispatcher := download.NewFileDispatcher(client, cfg.Download.Dir, download.WithOverwrite(cfg.Download.Overwrite))

	return &App{
		Config:     cfg,
		Client:     client,
		Aggregator: search.NewAggregator(sources, search.WithParallelism(cfg.Search.Parallelism)),
		Resolver:   resolver,
		Downloads:  download.NewService(resolver, dispatcher, download.WithHistory(history)),
		History:    history,
		Filter:     cfg.FilterOptions(),
	}, nil
}

// buildSources creates the catalogue, archive and web search adapters in
// that order. The web search composite is left out when no engine is enabled.
func buildSources(client *httpx.Client, cfg config.Sources) ([]search.Searcher, error) {
	sources := []search.Searcher{
		source.NewCatalogue(client, cfg.CatalogueURL),
		source.NewArchive(client, cfg.ArchiveURL),
	}

	engines := make([]source.Engine, 0, len(cfg.Engines))
	for _, name := range cfg.Engines {
		engine, err := source.EngineByName(name, cfg.EngineURLs[name])
		if err != nil {
			return nil, err
		}
		engines = append(engines, engine)
	}
	if len(engines) > 0 {
		sources = append(sources, source.NewWebSearch(client, engines...))
	}
	return sources, nil
}

func openHistory(cfg config.History) (*datastore.History, error) {
	var mirrors []datastore.Store
	if cfg.DatasetteURL != "" {
		mirrors = append(mirrors, datastore.NewDatasetteClient(cfg.DatasetteURL, cfg.DatasetteToken))
	}
	history, err := datastore.NewHistory(datastore.NewSQLiteStore(cfg.DBFile), mirrors...)
	if err != nil {
		return nil, fmt.Errorf("failed to open download history: %w", err)
	}
	slog.Debug("Download history ready", "path", cfg.DBFile, "mirrors", len(mirrors))
	return history, nil
}

// Close releases the history database.
func (a *App) Close() error {
	return a.History.Close()
}
