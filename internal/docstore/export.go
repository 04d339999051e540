package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"path"

	"gopkg.in/yaml.v3"

	"github.com/daewon/plantops/internal/parser"
	"github.com/daewon/plantops/internal/storage"
)

// Export writes every document of collection to the seed directory as
// <collection>/<id>.yaml and hands the documents over to their seed files,
// so removing a file later removes the document. It returns the number of
// files written.
func Export(ctx context.Context, s *Store, seeds storage.Provider, collection string) (int, error) {
	docs, err := s.List(ctx, collection, ListOptions{})
	if err != nil {
		return 0, err
	}

	n := 0
	for _, d := range docs {
		rel := path.Join(collection, d.ID+".yaml")
		if _, _, err := parser.SplitPath(rel); err != nil {
			return n, fmt.Errorf("export: %s/%s: %w", collection, d.ID, err)
		}

		var v any
		if err := json.Unmarshal(d.Data, &v); err != nil {
			return n, fmt.Errorf("export: decode %s/%s: %w", collection, d.ID, err)
		}
		out, err := yaml.Marshal(v)
		if err != nil {
			return n, fmt.Errorf("export: encode %s/%s: %w", collection, d.ID, err)
		}
		if err := seeds.Write(rel, out); err != nil {
			return n, err
		}
		if _, err := importFile(ctx, s, seeds, rel); err != nil {
			return n, err
		}
		if err := s.claim(ctx, collection, d.ID); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// claim marks a document as owned by its seed file.
func (s *Store) claim(ctx context.Context, collection, id string) error {
	_, err := s.conn.ExecContext(ctx,
		`UPDATE documents SET origin = ? WHERE collection = ? AND id = ?`, OriginSeed, collection, id)
	if err != nil {
		return fmt.Errorf("docstore: claim %s/%s: %w", collection, id, err)
	}
	return nil
}
