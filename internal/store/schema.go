package store

import "strings"

// Canonical table definitions. These exact texts (after whitespace
// normalisation) are compared against sqlite_master on startup; any drift
// drops and recreates the whole schema. The library on disk is the source of
// truth, so the state is cheap to rebuild and no migration engine is needed.
var expectedTables = map[string]string{
	"entries": `CREATE TABLE entries (
		uuid TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		hash TEXT NOT NULL,
		path TEXT NOT NULL,
		size INTEGER NOT NULL)`,
	"metadata": `CREATE TABLE metadata (
		uuid TEXT NOT NULL REFERENCES entries(uuid),
		kind TEXT NOT NULL,
		codec TEXT NOT NULL DEFAULT 'Unknown',
		format TEXT NOT NULL DEFAULT 'Unknown',
		sar TEXT NOT NULL DEFAULT 'Unknown',
		dar TEXT NOT NULL DEFAULT 'Unknown',
		resolution TEXT NOT NULL DEFAULT 'Unknown',
		framerate REAL NOT NULL DEFAULT 0.0,
		extra TEXT NOT NULL DEFAULT '{}',
		PRIMARY KEY (uuid, kind))`,
	"progress": `CREATE TABLE progress (
		uuid TEXT PRIMARY KEY REFERENCES entries(uuid),
		status TEXT NOT NULL DEFAULT 'pending',
		progress REAL NOT NULL DEFAULT 0.0,
		frame_current INTEGER NOT NULL DEFAULT 0,
		frame_total INTEGER NOT NULL DEFAULT 0,
		workfile TEXT)`,
}

// createStatements is the full schema in creation order: tables first, then
// indexes. Indexes are not part of the validation comparison.
var createStatements = []string{
	expectedTables["entries"],
	expectedTables["metadata"],
	expectedTables["progress"],
	`CREATE INDEX idx_entries_hash ON entries(hash)`,
	`CREATE INDEX idx_entries_path ON entries(path)`,
	`CREATE INDEX idx_entries_size_desc ON entries(size DESC)`,
	`CREATE INDEX idx_progress_status ON progress(status)`,
}

// dropStatements removes the schema in dependency order.
var dropStatements = []string{
	`DROP TABLE IF EXISTS metadata`,
	`DROP TABLE IF EXISTS progress`,
	`DROP TABLE IF EXISTS entries`,
}

// normaliseSQL collapses all whitespace runs to single spaces so that schema
// comparison is insensitive to formatting.
func normaliseSQL(sql string) string {
	return strings.Join(strings.Fields(sql), " ")
}
