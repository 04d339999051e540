// Package models defines the domain types shared by storage and the document store.
package models

import "time"

// SeedFile is a lightweight description of a seed document on disk.
type SeedFile struct {
	Path       string    `json:"path"`
	Collection string    `json:"collection"`
	ID         string    `json:"id"`
	Checksum   string    `json:"checksum"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Key returns the "collection/id" form used to match files with documents.
func (f SeedFile) Key() string {
	return f.Collection + "/" + f.ID
}
