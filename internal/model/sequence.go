package model

import "time"

// Storage keys used with the key-value collaborator.
const (
	KeyRecords        = "businessData"
	KeyAutoSequence   = "autoSequence"
	KeyColumnPrefs    = "columnPrefs"
	KeyEnrichFailures = "enrichFailures"
)

// SequenceState is the persisted resume point of the auto-sequence.
type SequenceState struct {
	CursorIndex int       `json:"cursorIndex"`
	IsActive    bool      `json:"isActive"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
