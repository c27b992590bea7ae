// Package config snapshots viper settings into a typed Config.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/lepinkainen/folio/internal/book"
	"github.com/lepinkainen/folio/internal/filter"
	"github.com/lepinkainen/folio/internal/httpx"
	"github.com/lepinkainen/folio/internal/resolve"
	"github.com/lepinkainen/folio/internal/source"
)

// EnvPrefix is prepended to every environment override, e.g.
// FOLIO_HTTP_TIMEOUT=30s.
const EnvPrefix = "FOLIO"

// Sources configures where searches go.
type Sources struct {
	CatalogueURL string            `mapstructure:"catalogue_url"`
	ArchiveURL   string            `mapstructure:"archive_url"`
	Engines      []string          `mapstructure:"engines"`
	EngineURLs   map[string]string `mapstructure:"engine_urls"`
}

// HTTP configures the shared client.
type HTTP struct {
	Timeout    time.Duration `mapstructure:"timeout"`
	Retries    int           `mapstructure:"retries"`
	UserAgents []string      `mapstructure:"user_agents"`
	Proxy      string        `mapstructure:"proxy"`
	Rate       int           `mapstructure:"rate"`
	Burst      int           `mapstructure:"burst"`
}

// Search configures aggregation and filtering.
type Search struct {
	Parallelism     int      `mapstructure:"parallelism"`
	AllowNSFW       bool     `mapstructure:"allow_nsfw"`
	Formats         []string `mapstructure:"formats"`
	// BlockedKeywords replaces the built-in content policy list when set.
	BlockedKeywords []string `mapstructure:"blocked_keywords"`
}

// Download configures the file dispatcher.
type Download struct {
	Dir       string `mapstructure:"dir"`
	Overwrite bool   `mapstructure:"overwrite"`
}

// History configures the download log.
type History struct {
	DBFile         string `mapstructure:"dbfile"`
	DatasetteURL   string `mapstructure:"datasette_url"`
	DatasetteToken string `mapstructure:"datasette_token"`
}

// Resolve configures the mirror chase.
type Resolve struct {
	MaxHops         int      `mapstructure:"max_hops"`
	CatalogueMarker string   `mapstructure:"catalogue_marker"`
	FallbackLabels  []string `mapstructure:"fallback_labels"`
}

// Config is the full application configuration.
type Config struct {
	Sources  Sources  `mapstructure:"sources"`
	HTTP     HTTP     `mapstructure:"http"`
	Search   Search   `mapstructure:"search"`
	Download Download `mapstructure:"download"`
	History  History  `mapstructure:"history"`
	Resolve  Resolve  `mapstructure:"resolve"`
}

// FormatSet is the configured default format filter. An empty or
// unrecognised list means every supported format.
func (c Config) FormatSet() book.FormatSet {
	set := book.ParseFormatSet(c.Search.Formats)
	if set.Empty() {
		return book.AllFormats
	}
	return set
}

// FilterOptions builds the filter pipeline settings.
func (c Config) FilterOptions() filter.Options {
	return filter.Options{
		AllowNSFW:       c.Search.AllowNSFW,
		Formats:         c.FormatSet(),
		BlockedKeywords: c.Search.BlockedKeywords,
	}
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("sources.catalogue_url", source.DefaultCatalogueURL)
	v.SetDefault("sources.archive_url", source.DefaultArchiveURL)
	v.SetDefault("sources.engines", source.DefaultEngines)

	v.SetDefault("http.timeout", httpx.DefaultTimeout)
	v.SetDefault("http.retries", httpx.DefaultRetryMax)
	v.SetDefault("http.proxy", "")
	v.SetDefault("http.rate", 2)
	v.SetDefault("http.burst", 2)

	v.SetDefault("search.parallelism", 0)
	v.SetDefault("search.allow_nsfw", false)
	v.SetDefault("search.formats", []string{"pdf", "epub", "mobi", "azw3"})
	v.SetDefault("search.blocked_keywords", []string{})

	v.SetDefault("download.dir", "./downloads/")
	v.SetDefault("download.overwrite", false)

	v.SetDefault("history.dbfile", "./folio.db")
	v.SetDefault("history.datasette_url", "")

	v.SetDefault("resolve.max_hops", resolve.DefaultMaxHops)
	v.SetDefault("resolve.catalogue_marker", resolve.DefaultCatalogueMarker)
	v.SetDefault("resolve.fallback_labels", resolve.DefaultFallbackLabels)
}

// BindEnv enables FOLIO_* environment overrides on v.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads the global viper instance.
func Load() (Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom registers defaults on v and decodes it.
func LoadFrom(v *viper.Viper) (Config, error) {
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	// Environment values arrive as single strings.
	cfg.Sources.Engines = splitList(cfg.Sources.Engines)
	cfg.Search.Formats = splitList(cfg.Search.Formats)
	cfg.Resolve.FallbackLabels = splitLabels(cfg.Resolve.FallbackLabels)
	cfg.Search.BlockedKeywords = splitLabels(cfg.Search.BlockedKeywords)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values no component can work with.
func (c Config) Validate() error {
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be positive, got %s", c.HTTP.Timeout)
	}
	if c.HTTP.Retries < 0 {
		return fmt.Errorf("http.retries must not be negative, got %d", c.HTTP.Retries)
	}
	if c.Resolve.MaxHops < 0 {
		return fmt.Errorf("resolve.max_hops must not be negative, got %d", c.Resolve.MaxHops)
	}
	if c.Search.Parallelism < 0 {
		return fmt.Errorf("search.parallelism must not be negative, got %d", c.Search.Parallelism)
	}
	for _, name := range c.Sources.Engines {
		if _, err := source.EngineByName(name, ""); err != nil {
			return err
		}
	}
	return nil
}

func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' }) {
			out = append(out, strings.ToLower(part))
		}
	}
	return out
}

func splitLabels(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
