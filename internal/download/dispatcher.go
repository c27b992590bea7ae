// Package download hands resolved file URLs to a dispatcher and keeps a
// record of what was sent.
package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/lepinkainen/folio/internal/fileutil"
)

// ErrEmptyURL is returned when a dispatcher is given nothing to fetch.
var ErrEmptyURL = errors.New("download URL is empty")

// Dispatcher accepts a direct file URL and a suggested file name. What
// happens next (a local write, a platform download manager) is up to the
// implementation.
type Dispatcher interface {
	Enqueue(ctx context.Context, url string, suggestedFileName string) error
}

// Opener issues a GET and returns a 2xx response. *httpx.Client satisfies it.
type Opener interface {
	Open(ctx context.Context, rawURL string, header http.Header) (*http.Response, error)
}

// FileDispatcher streams files into a local directory.
type FileDispatcher struct {
	open      Opener
	dir       string
	overwrite bool
}

// FileOption configures a FileDispatcher.
type FileOption func(*FileDispatcher)

// WithOverwrite replaces existing files instead of skipping them.
func WithOverwrite(overwrite bool) FileOption {
	return func(d *FileDispatcher) {
		d.overwrite = overwrite
	}
}

// NewFileDispatcher writes into dir, creating it on first use.
func NewFileDispatcher(open Opener, dir string, opts ...FileOption) *FileDispatcher {
	if dir == "" {
		dir = "."
	}
	d := &FileDispatcher{open: open, dir: dir}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dir is the target directory.
func (d *FileDispatcher) Dir() string {
	return d.dir
}

// Path is where a file with the given name ends up.
func (d *FileDispatcher) Path(name string) string {
	return filepath.Join(d.dir, filepath.Base(name))
}

// Enqueue downloads url to the target directory. An existing file is left
// alone unless overwrite is set.
func (d *FileDispatcher) Enqueue(ctx context.Context, url string, suggestedFileName string) error {
	if strings.TrimSpace(url) == "" {
		return ErrEmptyURL
	}
	name := filepath.Base(fileutil.SanitizeFilename(suggestedFileName))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return fmt.Errorf("invalid file name %q", suggestedFileName)
	}

	if err := os.MkdirAll(d.dir, 0755); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}

	path := d.Path(name)
	if fileutil.FileExists(path) && !d.overwrite {
		slog.Info("File already exists, skipping download", "path", path)
		return nil
	}

	resp, err := d.open.Open(ctx, url, http.Header{"Accept": {"*/*"}})
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Mirrors sometimes answer with an interstitial page instead of the file.
	if mt, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err == nil && mt == "text/html" {
		slog.Warn("Download returned an HTML page", "url", url, "path", path)
	}

	written, err := fileutil.WriteStreamWithOverwrite(path, resp.Body, true)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	slog.Info("Downloaded file", "path", path, "bytes", written)
	return nil
}
