package constants

// ProgressStatus is the canonical status for rows in the progress store.
type ProgressStatus string

// Stable values (store these exact strings in DB).
const (
	StatusPending  ProgressStatus = "PENDING"   // seen, not yet dispatched
	StatusInFlight ProgressStatus = "IN_FLIGHT" // handed to a worker
	StatusDone     ProgressStatus = "DONE"      // fetched and extracted
	StatusFailed   ProgressStatus = "FAILED"    // terminal failure, retried on the next run
)

// ParseProgressStatus maps a stored string back to a status.
func ParseProgressStatus(s string) (ProgressStatus, bool) {
	switch ProgressStatus(s) {
	case StatusPending, StatusInFlight, StatusDone, StatusFailed:
		return ProgressStatus(s), true
	}
	return "", false
}

// NeedsWork reports whether a descriptor in this status must be dispatched again.
func (s ProgressStatus) NeedsWork() bool {
	return s != StatusDone
}
