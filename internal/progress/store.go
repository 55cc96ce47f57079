package progress

import (
	"context"
	"sort"
	"sync"

	"github.com/joseph-ayodele/datares-tracker/constants"
	"github.com/joseph-ayodele/datares-tracker/internal/entity"
)

// Store persists the processing state of each descriptor across runs.
// Record must be durable when it returns.
type Store interface {
	Load(ctx context.Context) (map[string]entity.ProgressEntry, error)
	Record(ctx context.Context, e entity.ProgressEntry) error
	Close() error
}

// Counts tallies entries by status.
func Counts(entries map[string]entity.ProgressEntry) map[constants.ProgressStatus]int {
	out := make(map[constants.ProgressStatus]int, 4)
	for _, e := range entries {
		out[e.Status]++
	}
	return out
}

// Failed returns failed entries ordered by identity.
func Failed(entries map[string]entity.ProgressEntry) []entity.ProgressEntry {
	var out []entity.ProgressEntry
	for _, e := range entries {
		if e.Status == constants.StatusFailed {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}

// Memory is a process-local Store.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entity.ProgressEntry
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]entity.ProgressEntry)}
}

func (m *Memory) Load(_ context.Context) (map[string]entity.ProgressEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]entity.ProgressEntry, len(m.entries))
	for k, v := range m.entries {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) Record(_ context.Context, e entity.ProgressEntry) error {
	if e.Identity == "" {
		return errEmptyIdentity
	}
	e.Facts = append([]entity.Fact(nil), e.Facts...)
	m.mu.Lock()
	m.entries[e.Identity] = e
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }
