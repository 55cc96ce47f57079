package pipeline

import (
	"time"
)

// Failure is one document that ended Failed in this run.
type Failure struct {
	Identity string `json:"identity"`
	URL      string `json:"url"`
	Reason   string `json:"reason"`
}

// Summary reports the outcome of a run.
type Summary struct {
	Total            int           `json:"total"` // unique descriptors
	Succeeded        int           `json:"succeeded"`
	RetriedSucceeded int           `json:"retried_succeeded"` // subset of Succeeded
	Failed           int           `json:"failed"`
	Skipped          int           `json:"skipped"` // already Done
	NotDispatched    int           `json:"not_dispatched"`
	Duplicates       int           `json:"duplicates"` // repeated descriptors in the input
	DiscardedMatches int           `json:"discarded_matches"`
	Facts            int           `json:"facts"`
	FromCache        int           `json:"from_cache"`
	Checkpoints      int           `json:"checkpoints"`
	Failures         []Failure     `json:"failures,omitempty"`
	Elapsed          time.Duration `json:"elapsed"`
}

// Completed is the number of documents that reached a terminal status this run.
func (s Summary) Completed() int {
	return s.Succeeded + s.Failed
}
