package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/finledger/invoice-recon/constants"
)

// ScanJob is the poller-visible snapshot of one scan invocation.
// Processed never exceeds Total once Total is known, and Status only moves
// RUNNING -> {DONE|ERROR}.
type ScanJob struct {
	ID         uuid.UUID            `json:"id"`
	Status     constants.ScanStatus `json:"status"`
	Total      int                  `json:"total"`
	Processed  int                  `json:"processed"`
	Scanned    int                  `json:"scanned"` // newly cached this run
	Matched    int                  `json:"matched"`
	Errors     []string             `json:"errors,omitempty"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt *time.Time           `json:"finished_at,omitempty"`
}
