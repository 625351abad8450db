package model

import "time"

// SweepRequest asks a reclaimer to delete expired mappings.
type SweepRequest struct {
	ID          string    `json:"id"`
	Origin      string    `json:"origin"`
	RequestedAt time.Time `json:"requested_at"`
}

const (
	ReclaimStreamName     = "RECLAIM"
	ReclaimStreamSubject  = "reclaim.sweep"
	ReclaimConsumerName   = "reclaimer"
	ReclaimStreamMaxBytes = 1024 * 1024 * 8 // 8MB
	// Requests published within the window with the same id collapse into one.
	ReclaimDedupWindow = 2 * time.Minute
)
