package models

// Status represents the position of an entry in the transcode state machine.
type Status string

const (
	// StatusUnknown indicates the entry has no usable state.
	StatusUnknown Status = "unknown"
	// StatusPending indicates the entry is eligible but not requested.
	StatusPending Status = "pending"
	// StatusQueued indicates the entry has been admitted for encoding.
	StatusQueued Status = "queued"
	// StatusInProgress indicates the worker is currently encoding the entry.
	StatusInProgress Status = "in_progress"
	// StatusOptimum indicates the skip oracle judged the file already optimal.
	StatusOptimum Status = "optimum"
	// StatusDone indicates the entry was encoded and published.
	StatusDone Status = "done"
)

// IsActive returns true for states that occupy the single encode slot.
func (s Status) IsActive() bool {
	return s == StatusQueued || s == StatusInProgress
}

// IsTerminal returns true for states an entry only leaves by explicit
// re-enqueue.
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusOptimum
}

// Progress tracks the transcode state of one entry.
type Progress struct {
	UUID         string  `gorm:"column:uuid;primaryKey" json:"uuid"`
	Status       Status  `gorm:"column:status;default:pending" json:"status"`
	Progress     float64 `gorm:"column:progress;default:0" json:"progress"`
	FrameCurrent int64   `gorm:"column:frame_current;default:0" json:"frame_current"`
	FrameTotal   int64   `gorm:"column:frame_total;default:0" json:"frame_total"`
	Workfile     *string `gorm:"column:workfile" json:"workfile,omitempty"`
}

// TableName returns the table name for Progress.
func (Progress) TableName() string {
	return "progress"
}

// NewProgress returns a fresh pending progress row for an entry.
func NewProgress(entryUUID string) *Progress {
	return &Progress{
		UUID:   entryUUID,
		Status: StatusPending,
	}
}
