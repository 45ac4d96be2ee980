// Package evidence fans attachment uploads out concurrently and gathers their
// locators in submission order.
package evidence

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/mscno/safereport/pkg/upload"
)

// DefaultFolder is the object storage folder for report attachments.
const DefaultFolder = "evidence"

// File is one attachment supplied with a report.
type File struct {
	Name string
	Data []byte
}

// Storer is satisfied by *upload.Gateway.
type Storer interface {
	Store(ctx context.Context, data []byte, originalName, folder string) upload.Locator
}

// Ingestor uploads the files of one submission.
type Ingestor struct {
	storer      Storer
	folder      string
	concurrency int
	logger      *slog.Logger
}

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithFolder sets the storage folder. Defaults to DefaultFolder.
func WithFolder(folder string) Option {
	return func(i *Ingestor) {
		i.folder = folder
	}
}

// WithConcurrency caps the number of in-flight uploads. Zero means unbounded.
func WithConcurrency(n int) Option {
	return func(i *Ingestor) {
		i.concurrency = n
	}
}

func NewIngestor(storer Storer, logger *slog.Logger, opts ...Option) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	i := &Ingestor{storer: storer, folder: DefaultFolder, logger: logger}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Ingest stores every file and returns one locator per file, in input order.
// Each upload writes only its own slot; a failed upload degrades to a local
// locator inside the Storer and never affects its siblings.
func (i *Ingestor) Ingest(ctx context.Context, files []File) []upload.Locator {
	if len(files) == 0 {
		return []upload.Locator{}
	}

	locators := make([]upload.Locator, len(files))
	var g errgroup.Group
	if i.concurrency > 0 {
		g.SetLimit(i.concurrency)
	}
	for idx, f := range files {
		g.Go(func() error {
			locators[idx] = i.storer.Store(ctx, f.Data, f.Name, i.folder)
			return nil
		})
	}
	_ = g.Wait()

	local := 0
	for _, l := range locators {
		if l.IsLocal() {
			local++
		}
	}
	i.logger.InfoContext(ctx, "ingested evidence", "files", len(files), "local", local)
	return locators
}
