package docstore

import (
	"context"
	"log/slog"
	"strings"

	"github.com/daewon/plantops/internal/parser"
	"github.com/daewon/plantops/internal/storage"
)

// Sync walks the seed directory and brings the store up to date:
//   - new/changed seed files are parsed and imported
//   - seed-origin documents whose file is gone are deleted
//
// Documents written through the API are never touched.
func Sync(ctx context.Context, s *Store, seeds storage.Provider, logger *slog.Logger) error {
	files, err := seeds.List("")
	if err != nil {
		return err
	}

	imported, err := s.SeedChecksums(ctx)
	if err != nil {
		return err
	}

	onDisk := make(map[string]struct{}, len(files))
	for _, f := range files {
		onDisk[f.Key()] = struct{}{}
		if _, err := importFile(ctx, s, seeds, f.Path); err != nil {
			logger.Warn("sync: import failed", slog.String("path", f.Path), slog.String("error", err.Error()))
		}
	}

	for key := range imported {
		if _, ok := onDisk[key]; ok {
			continue
		}
		coll, id := splitKey(key)
		if err := s.Delete(ctx, coll, id); err != nil {
			logger.Warn("sync: delete failed", slog.String("key", key), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: removed stale", slog.String("key", key))
		}
	}

	return nil
}

// importFile reads, parses and imports one seed file. It reports whether the
// stored document changed.
func importFile(ctx context.Context, s *Store, seeds storage.Provider, rel string) (bool, error) {
	data, err := seeds.Read(rel)
	if err != nil {
		return false, err
	}
	res, err := parser.Parse(rel, data)
	if err != nil {
		return false, err
	}
	return s.Import(ctx, res.Collection, res.ID, res.Body)
}

func splitKey(key string) (string, string) {
	coll, id, _ := strings.Cut(key, "/")
	return coll, id
}
