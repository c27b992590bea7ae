package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/lepinkainen/humanlog"
	"github.com/spf13/viper"

	"github.com/lepinkainen/folio/internal/config"
	ferrors "github.com/lepinkainen/folio/internal/errors"
)

// stdout receives command output; logs go to stderr.
var stdout io.Writer = os.Stdout

// CLI represents the complete command structure for the folio application
type CLI struct {
	// Global flags
	Config    string        `help:"Path to config file (default ./config.yaml)" type:"path"`
	Verbose   bool          `short:"v" help:"Enable debug logging"`
	AllowNSFW bool          `name:"allow-nsfw" help:"Disable the content policy filter"`
	Format    []string      `short:"F" help:"Accepted formats (pdf, epub, mobi, azw3); repeatable"`
	Proxy     string        `help:"HTTP, HTTPS or SOCKS5 proxy URL"`
	Timeout   time.Duration `help:"Per-request timeout (e.g. 20s)"`

	Search  SearchCmd  `cmd:"" help:"Search every source for a book"`
	Get     GetCmd     `cmd:"" help:"Resolve a reference and download the file"`
	Batch   BatchCmd   `cmd:"" help:"Download every reference listed in a CSV file"`
	History HistoryCmd `cmd:"" help:"List recent downloads"`
}

func newParser(cli *CLI, opts ...kong.Option) (*kong.Kong, error) {
	return kong.New(cli, append([]kong.Option{
		kong.Name("folio"),
		kong.Description("Search book catalogues, archives and the web, and download the file."),
		kong.UsageOnError(),
	}, opts...)...)
}

// Execute runs the Kong-based CLI
func Execute() {
	var cli CLI
	parser, err := newParser(&cli)
	if err != nil {
		panic(err)
	}
	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	initLogging(cli.Verbose)

	cfg, err := loadConfig(&cli)
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	if err := ctx.Run(cfg); err != nil {
		if ferrors.IsStopProcessingError(err) {
			slog.Warn("Stopped", "reason", err)
			os.Exit(130)
		}
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig reads .env, the config file and the environment, then applies
// the global flags on top.
func loadConfig(cli *CLI) (config.Config, error) {
	if err := initConfig(cli.Config); err != nil {
		return config.Config{}, err
	}
	applyFlags(cli)
	return config.Load()
}

func initConfig(path string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	config.SetDefaults(viper.GetViper())
	config.BindEnv(viper.GetViper())

	if path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config %s: %w", path, err)
		}
		return nil
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
		slog.Info("Config file not found, writing default config file")
		if err := viper.SafeWriteConfig(); err != nil {
			slog.Warn("Error writing config file", "error", err)
		}
	}
	return nil
}

// applyFlags overrides config values with explicitly set global flags.
func applyFlags(cli *CLI) {
	if cli.AllowNSFW {
		viper.Set("search.allow_nsfw", true)
	}
	if len(cli.Format) > 0 {
		viper.Set("search.formats", cli.Format)
	}
	if cli.Proxy != "" {
		viper.Set("http.proxy", cli.Proxy)
	}
	if cli.Timeout > 0 {
		viper.Set("http.timeout", cli.Timeout)
	}
}

func initLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := humanlog.NewHandler(os.Stderr, &humanlog.Options{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}
