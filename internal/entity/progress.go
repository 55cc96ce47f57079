package entity

import (
	"time"

	"github.com/joseph-ayodele/datares-tracker/constants"
)

// ProgressEntry is the persisted processing state of one descriptor.
type ProgressEntry struct {
	Identity    string                   `json:"identity"`
	URL         string                   `json:"url"`
	Status      constants.ProgressStatus `json:"status"`
	Reason      string                   `json:"reason,omitempty"`
	Attempts    int                      `json:"attempts"`
	Retried     bool                     `json:"retried"`
	LastAttempt time.Time                `json:"last_attempt"`
	// Facts extracted when Status is Done; replayed into the tables on resume.
	Facts []Fact `json:"facts,omitempty"`
}
