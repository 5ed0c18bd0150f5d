package services

import (
	"context"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/tbourn/go-forms-backend/internal/storage"
)

// FileStore persists uploaded payloads. *storage.Store implements it.
type FileStore interface {
	Save(folder, name string, blob storage.Blob) (string, error)
	Remove(rel string) error
}

// cleanupLimit bounds concurrent file removals.
const cleanupLimit = 4

// removeFiles deletes stored uploads after their rows are gone. Failures are
// logged, never returned: the database is already the source of truth.
func removeFiles(ctx context.Context, fs FileStore, paths []string) {
	if fs == nil || len(paths) == 0 {
		return
	}
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(cleanupLimit)
	for _, p := range paths {
		if p == "" {
			continue
		}
		g.Go(func() error { return fs.Remove(p) })
	}
	if err := g.Wait(); err != nil {
		log.Warn().Err(err).Int("files", len(paths)).Msg("upload cleanup incomplete")
	}
}
