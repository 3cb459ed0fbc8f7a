package domain

import "time"

// Status labels written to the ledger.
const (
	StatusProcessed      = "Processed"
	StatusProcessedAudio = "Processed (audio)"
)

// Marker is the durable record that an item has been handled.
type Marker struct {
	ItemID      string    `json:"item_id"`
	Title       string    `json:"title"`
	Status      string    `json:"status"`
	ProcessedAt time.Time `json:"processed_at,omitempty"`
}

// StatusFor returns the ledger status label for content of the given kind.
func StatusFor(kind ContentKind) string {
	if kind == KindAudio {
		return StatusProcessedAudio
	}
	return StatusProcessed
}
