// Package storage defines the seed-directory file abstraction.
//
// The seed directory holds one file per document, laid out as
// <collection>/<id>.yaml (or .yml/.json). Administrators edit these files;
// the document store imports them.
package storage

import "github.com/daewon/plantops/internal/models"

// Provider is the interface for seed file operations.
type Provider interface {
	// List returns metadata for every seed file under dir (relative to the seed root).
	List(dir string) ([]models.SeedFile, error)
	// Read returns the raw bytes of the file at path (relative to the seed root).
	Read(path string) ([]byte, error)
	// Write atomically writes content to path (relative to the seed root).
	Write(path string, content []byte) error
}
