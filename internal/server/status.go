package server

import (
	"sort"
	"sync"
	"time"

	"github.com/joseph-ayodele/datares-tracker/constants"
	"github.com/joseph-ayodele/datares-tracker/internal/pipeline"
)

// Tracker follows a scheduler run through its events.
type Tracker struct {
	mu       sync.RWMutex
	runID    string
	started  time.Time
	finished time.Time
	counts   map[constants.ProgressStatus]int
	inFlight map[string]time.Time
	summary  *pipeline.Summary
	now      func() time.Time
}

func NewTracker(runID string) *Tracker {
	return &Tracker{
		runID:    runID,
		started:  time.Now(),
		counts:   make(map[constants.ProgressStatus]int),
		inFlight: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Observe is a pipeline.WithObserver callback.
func (t *Tracker) Observe(e pipeline.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch e.Type {
	case pipeline.EventStarted:
		t.inFlight[e.Identity] = t.now()
	case pipeline.EventFinished:
		delete(t.inFlight, e.Identity)
		t.counts[e.Status]++
	case pipeline.EventSkipped:
		t.counts[e.Status]++
	}
}

// Finish stores the final summary.
func (t *Tracker) Finish(sum pipeline.Summary) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.summary = &sum
	t.finished = t.now()
}

// Done reports whether Finish was called.
func (t *Tracker) Done() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.summary != nil
}

// InFlightDoc is a document currently held by a worker.
type InFlightDoc struct {
	Identity string    `json:"identity"`
	Since    time.Time `json:"since"`
}

// Snapshot is the JSON body of /status.
type Snapshot struct {
	RunID     string            `json:"run_id"`
	State     string            `json:"state"`
	StartedAt time.Time         `json:"started_at"`
	Done      int               `json:"done"`
	Failed    int               `json:"failed"`
	InFlight  []InFlightDoc     `json:"in_flight"`
	Summary   *pipeline.Summary `json:"summary,omitempty"`
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := Snapshot{
		RunID:     t.runID,
		State:     "running",
		StartedAt: t.started,
		Done:      t.counts[constants.StatusDone],
		Failed:    t.counts[constants.StatusFailed],
		InFlight:  make([]InFlightDoc, 0, len(t.inFlight)),
		Summary:   t.summary,
	}
	if t.summary != nil {
		s.State = "finished"
	}
	for id, since := range t.inFlight {
		s.InFlight = append(s.InFlight, InFlightDoc{Identity: id, Since: since})
	}
	sort.Slice(s.InFlight, func(i, j int) bool { return s.InFlight[i].Identity < s.InFlight[j].Identity })
	return s
}
