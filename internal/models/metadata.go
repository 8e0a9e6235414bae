package models

// Unknown is the sentinel value for metadata fields that could not be
// determined. It is distinct from the empty string so that a populated row is
// always distinguishable from a missing one.
const Unknown = "Unknown"

// MetadataKind distinguishes where a metadata row came from.
type MetadataKind string

const (
	// KindDeclared is metadata parsed from the file name at scan time.
	KindDeclared MetadataKind = "declared"
	// KindActual is metadata measured by probing the file contents.
	KindActual MetadataKind = "actual"
)

// Metadata holds one kind of stream metadata for an entry. Each entry has at
// most one row per kind.
type Metadata struct {
	UUID       string       `gorm:"column:uuid;primaryKey" json:"uuid"`
	Kind       MetadataKind `gorm:"column:kind;primaryKey" json:"kind"`
	Codec      string       `gorm:"column:codec;default:Unknown" json:"codec"`
	Format     string       `gorm:"column:format;default:Unknown" json:"format"`
	SAR        string       `gorm:"column:sar;default:Unknown" json:"sar"`
	DAR        string       `gorm:"column:dar;default:Unknown" json:"dar"`
	Resolution string       `gorm:"column:resolution;default:Unknown" json:"resolution"`
	Framerate  float64      `gorm:"column:framerate;default:0" json:"framerate"`
	Extra      string       `gorm:"column:extra;default:'{}'" json:"extra"`
}

// TableName returns the table name for Metadata.
func (Metadata) TableName() string {
	return "metadata"
}

// NewMetadata returns a metadata row with every field set to its unknown
// default.
func NewMetadata(entryUUID string, kind MetadataKind) *Metadata {
	return &Metadata{
		UUID:       entryUUID,
		Kind:       kind,
		Codec:      Unknown,
		Format:     Unknown,
		SAR:        Unknown,
		DAR:        Unknown,
		Resolution: Unknown,
		Framerate:  0,
		Extra:      "{}",
	}
}
