// Package models defines the persistent row types for the media library.
package models

import "github.com/google/uuid"

// Entry represents one discovered media file. The identity of an entry is its
// (Hash, Path) pair; the UUID is an opaque handle used by the API and as the
// foreign key for metadata and progress rows.
type Entry struct {
	UUID string `gorm:"column:uuid;primaryKey" json:"uuid"`
	Name string `gorm:"column:name;not null" json:"name"`
	Hash string `gorm:"column:hash;not null" json:"hash"`
	Path string `gorm:"column:path;not null" json:"path"`
	Size int64  `gorm:"column:size;not null" json:"size"`
}

// TableName returns the table name for Entry.
func (Entry) TableName() string {
	return "entries"
}

// NewEntry creates an entry for a discovered file with a fresh UUID. The
// name is the cleaned display title, not the raw file name.
func NewEntry(name, hash, path string, size int64) *Entry {
	return &Entry{
		UUID: uuid.NewString(),
		Name: name,
		Hash: hash,
		Path: path,
		Size: size,
	}
}
