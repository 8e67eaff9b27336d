package constants

// ScanStatus is the canonical status for an in-memory scan job.
type ScanStatus string

// Stable values (returned verbatim to pollers).
const (
	ScanStatusRunning ScanStatus = "RUNNING" // scan in progress
	ScanStatusDone    ScanStatus = "DONE"    // terminal: completed, possibly with per-file errors
	ScanStatusError   ScanStatus = "ERROR"   // terminal: systemic failure before any file was processed
)

// Terminal reports whether a status can no longer change.
func (s ScanStatus) Terminal() bool {
	return s == ScanStatusDone || s == ScanStatusError
}
