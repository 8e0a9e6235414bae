package models

import "strconv"

// DeclaredMetadata is the classifier's view of a file, parsed from its name
// alone. Fields that could not be parsed hold the Unknown sentinel; Framerate
// stays in string form until persisted.
type DeclaredMetadata struct {
	Codec      string
	Format     string
	SAR        string
	DAR        string
	Resolution string
	Framerate  string
}

// NewDeclaredMetadata returns declared metadata with every field unknown.
func NewDeclaredMetadata() DeclaredMetadata {
	return DeclaredMetadata{
		Codec:      Unknown,
		Format:     Unknown,
		SAR:        Unknown,
		DAR:        Unknown,
		Resolution: Unknown,
		Framerate:  Unknown,
	}
}

// ToMetadata converts declared metadata into a persistable row for the given
// entry. An unparseable framerate becomes 0.
func (d DeclaredMetadata) ToMetadata(entryUUID string) *Metadata {
	meta := NewMetadata(entryUUID, KindDeclared)
	meta.Codec = d.Codec
	meta.Format = d.Format
	meta.SAR = d.SAR
	meta.DAR = d.DAR
	meta.Resolution = d.Resolution
	if fps, err := strconv.ParseFloat(d.Framerate, 64); err == nil {
		meta.Framerate = fps
	}
	return meta
}
