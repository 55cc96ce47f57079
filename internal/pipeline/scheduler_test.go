package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/datares-tracker/constants"
	"github.com/joseph-ayodele/datares-tracker/internal/aggregate"
	"github.com/joseph-ayodele/datares-tracker/internal/common"
	"github.com/joseph-ayodele/datares-tracker/internal/entity"
	"github.com/joseph-ayodele/datares-tracker/internal/progress"
)

type workerFunc func(ctx context.Context, d entity.Descriptor) Outcome

func (f workerFunc) Process(ctx context.Context, d entity.Descriptor) Outcome { return f(ctx, d) }

func descriptors(n int) []entity.Descriptor {
	out := make([]entity.Descriptor, n)
	for i := range out {
		out[i] = entity.Descriptor{
			StockCode:   fmt.Sprintf("%06d.SZ", i+1),
			CompanyName: fmt.Sprintf("公司%d", i+1),
			Title:       "2024年年度报告",
			ReportDate:  fmt.Sprintf("2025-03-%02d", i%28+1),
			URL:         fmt.Sprintf("https://static.cninfo.com.cn/finalpage/%d.PDF", i+1),
			ReportType:  constants.ReportAnnual,
		}
	}
	return out
}

// okOutcome yields one inventory fact whose amount is derived from the code.
func okOutcome(d entity.Descriptor) Outcome {
	f := entity.NewFact(d, constants.Inventory)
	f.Amount = &entity.Amount{Fen: int64(len(d.StockCode)*100 + int(d.StockCode[5]-'0'))}
	return Outcome{Descriptor: d, Facts: []entity.Fact{f}, Attempts: 1}
}

func TestSchedulerConcurrencyBound(t *testing.T) {
	const w = 3
	var inFlight, peak atomic.Int32
	worker := workerFunc(func(ctx context.Context, d entity.Descriptor) Outcome {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return okOutcome(d)
	})

	store := progress.NewMemory()
	s := NewScheduler(worker, store, nil, nil, WithWorkers(w))
	sum, err := s.Run(context.Background(), descriptors(10*w))
	require.NoError(t, err)

	assert.LessOrEqual(t, int(peak.Load()), w)
	assert.Equal(t, 10*w, sum.Total)
	assert.Equal(t, 10*w, sum.Succeeded)
	assert.Equal(t, 0, sum.Failed)

	entries, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10*w, progress.Counts(entries)[constants.StatusDone])
}

func TestSchedulerAdmitsAsSlotsFree(t *testing.T) {
	const total = 20
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	worker := workerFunc(func(_ context.Context, d entity.Descriptor) Outcome {
		if calls.Add(1) == 1 {
			close(started)
			<-release
		}
		return okOutcome(d)
	})

	store := progress.NewMemory()
	s := NewScheduler(worker, store, nil, nil, WithWorkers(1), WithQueueSize(1))
	done := make(chan Summary, 1)
	go func() {
		sum, err := s.Run(context.Background(), descriptors(total))
		assert.NoError(t, err)
		done <- sum
	}()

	<-started
	// give the dispatcher time to run ahead as far as the queue lets it
	time.Sleep(20 * time.Millisecond)
	entries, err := store.Load(context.Background())
	require.NoError(t, err)
	// one in flight, one queued, one admitted and waiting to be queued
	assert.LessOrEqual(t, len(entries), 3)
	close(release)

	sum := <-done
	assert.Equal(t, total, sum.Succeeded)
	entries, err = store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, total, progress.Counts(entries)[constants.StatusDone])
}

func TestSchedulerRecordsFailures(t *testing.T) {
	descs := descriptors(4)
	bad := descs[2].Identity()
	worker := workerFunc(func(ctx context.Context, d entity.Descriptor) Outcome {
		switch d.Identity() {
		case bad:
			return Outcome{Descriptor: d, Attempts: 1, Err: common.PermanentFetchError("status 404", nil)}
		case descs[0].Identity():
			out := okOutcome(d)
			out.Attempts = 3
			return out
		}
		return okOutcome(d)
	})

	store := progress.NewMemory()
	s := NewScheduler(worker, store, nil, nil, WithWorkers(2))
	sum, err := s.Run(context.Background(), descs)
	require.NoError(t, err)

	assert.Equal(t, 3, sum.Succeeded)
	assert.Equal(t, 1, sum.RetriedSucceeded)
	assert.Equal(t, 1, sum.Failed)
	require.Len(t, sum.Failures, 1)
	assert.Equal(t, bad, sum.Failures[0].Identity)
	assert.Contains(t, sum.Failures[0].Reason, "status 404")

	entries, _ := store.Load(context.Background())
	assert.Equal(t, constants.StatusFailed, entries[bad].Status)
	assert.True(t, entries[descs[0].Identity()].Retried)
	assert.Equal(t, 3, entries[descs[0].Identity()].Attempts)
	assert.Len(t, s.Aggregator().Long(), 3)
}

func TestSchedulerSkipsDoneAndRetriesOthers(t *testing.T) {
	descs := descriptors(4)
	store := progress.NewMemory()
	ctx := context.Background()

	done := okOutcome(descs[0])
	require.NoError(t, store.Record(ctx, entity.ProgressEntry{Identity: descs[0].Identity(), Status: constants.StatusDone, Facts: done.Facts}))
	require.NoError(t, store.Record(ctx, entity.ProgressEntry{Identity: descs[1].Identity(), Status: constants.StatusFailed, Reason: "status 503", Attempts: 3}))
	require.NoError(t, store.Record(ctx, entity.ProgressEntry{Identity: descs[2].Identity(), Status: constants.StatusInFlight}))

	var mu sync.Mutex
	var processed []string
	worker := workerFunc(func(ctx context.Context, d entity.Descriptor) Outcome {
		mu.Lock()
		processed = append(processed, d.Identity())
		mu.Unlock()
		return okOutcome(d)
	})

	sum, err := NewScheduler(worker, store, nil, nil, WithWorkers(2)).Run(ctx, descs)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{descs[1].Identity(), descs[2].Identity(), descs[3].Identity()}, processed)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 3, sum.Succeeded)
	assert.Equal(t, 4, sum.Facts)

	entries, _ := store.Load(ctx)
	assert.Equal(t, 4, entries[descs[1].Identity()].Attempts, "attempts accumulate across runs")
	assert.Equal(t, 1, entries[descs[3].Identity()].Attempts)
	assert.Equal(t, 4, progress.Counts(entries)[constants.StatusDone])
}

func TestSchedulerResumeMatchesUninterruptedRun(t *testing.T) {
	descs := descriptors(8)
	ctx := context.Background()

	full := NewScheduler(workerFunc(func(_ context.Context, d entity.Descriptor) Outcome { return okOutcome(d) }),
		progress.NewMemory(), nil, nil, WithWorkers(1))
	_, err := full.Run(ctx, descs)
	require.NoError(t, err)

	store := progress.NewMemory()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var calls atomic.Int32
	interrupting := workerFunc(func(_ context.Context, d entity.Descriptor) Outcome {
		if calls.Add(1) == 3 {
			cancel()
		}
		return okOutcome(d)
	})
	first, err := NewScheduler(interrupting, store, nil, nil, WithWorkers(1)).Run(runCtx, descs)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Succeeded)
	assert.Equal(t, 5, first.NotDispatched)

	var resumed atomic.Int32
	second := NewScheduler(workerFunc(func(_ context.Context, d entity.Descriptor) Outcome {
		resumed.Add(1)
		return okOutcome(d)
	}), store, nil, nil, WithWorkers(2))
	sum, err := second.Run(ctx, descs)
	require.NoError(t, err)

	assert.Equal(t, int32(5), resumed.Load())
	assert.Equal(t, 3, sum.Skipped)
	assert.Equal(t, full.Aggregator().Long(), second.Aggregator().Long())
	assert.Equal(t, full.Aggregator().Wide(), second.Aggregator().Wide())
}

func TestSchedulerIdempotentAcrossRuns(t *testing.T) {
	descs := descriptors(5)
	agg := aggregate.New()
	worker := workerFunc(func(_ context.Context, d entity.Descriptor) Outcome { return okOutcome(d) })

	// a fresh store reprocesses everything into the same aggregator
	_, err := NewScheduler(worker, progress.NewMemory(), agg, nil).Run(context.Background(), descs)
	require.NoError(t, err)
	long := agg.Long()
	_, err = NewScheduler(worker, progress.NewMemory(), agg, nil).Run(context.Background(), descs)
	require.NoError(t, err)

	assert.Equal(t, long, agg.Long())
	assert.Len(t, agg.Wide(), 5)
}

func TestSchedulerDedupesAndOrders(t *testing.T) {
	descs := descriptors(6)
	input := append([]entity.Descriptor{descs[5], descs[0]}, descs...)

	var mu sync.Mutex
	var order []string
	worker := workerFunc(func(_ context.Context, d entity.Descriptor) Outcome {
		mu.Lock()
		order = append(order, d.ReportDate+"/"+d.StockCode)
		mu.Unlock()
		return okOutcome(d)
	})
	sum, err := NewScheduler(worker, progress.NewMemory(), nil, nil, WithWorkers(1)).Run(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, 6, sum.Total)
	assert.Equal(t, 2, sum.Duplicates)
	assert.IsIncreasing(t, order)
}

func TestSchedulerRecoversWorkerPanic(t *testing.T) {
	descs := descriptors(2)
	worker := workerFunc(func(_ context.Context, d entity.Descriptor) Outcome {
		if d.Identity() == descs[0].Identity() {
			panic("boom")
		}
		return okOutcome(d)
	})
	sum, err := NewScheduler(worker, progress.NewMemory(), nil, nil).Run(context.Background(), descs)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 1, sum.Succeeded)
	assert.Contains(t, sum.Failures[0].Reason, "boom")
}

func TestSchedulerDocTimeout(t *testing.T) {
	worker := workerFunc(func(ctx context.Context, d entity.Descriptor) Outcome {
		<-ctx.Done()
		return Outcome{Descriptor: d, Attempts: 1, Err: common.TransientFetchError("http get", ctx.Err())}
	})
	sum, err := NewScheduler(worker, progress.NewMemory(), nil, nil, WithDocTimeout(10*time.Millisecond)).
		Run(context.Background(), descriptors(2))
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Failed)
}

func TestSchedulerCheckpointsAndEvents(t *testing.T) {
	var flushes []int
	checkpoint := func(_ context.Context, long []entity.Fact, wide []entity.WideRow) error {
		flushes = append(flushes, len(long))
		return nil
	}
	var started, finished atomic.Int32
	observer := func(e Event) {
		switch e.Type {
		case EventStarted:
			started.Add(1)
		case EventFinished:
			finished.Add(1)
		}
	}
	worker := workerFunc(func(_ context.Context, d entity.Descriptor) Outcome { return okOutcome(d) })

	sum, err := NewScheduler(worker, progress.NewMemory(), nil, nil,
		WithWorkers(1), WithCheckpoint(2, checkpoint), WithObserver(observer)).
		Run(context.Background(), descriptors(5))
	require.NoError(t, err)

	assert.Equal(t, []int{2, 4, 5}, flushes)
	assert.Equal(t, 3, sum.Checkpoints)
	assert.Equal(t, int32(5), started.Load())
	assert.Equal(t, int32(5), finished.Load())
}

type failingStore struct {
	*progress.Memory
	loadErr error
}

func (f failingStore) Load(ctx context.Context) (map[string]entity.ProgressEntry, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.Memory.Load(ctx)
}

func TestSchedulerLoadFailureAborts(t *testing.T) {
	var calls atomic.Int32
	worker := workerFunc(func(_ context.Context, d entity.Descriptor) Outcome {
		calls.Add(1)
		return okOutcome(d)
	})
	store := failingStore{Memory: progress.NewMemory(), loadErr: errors.New("disk gone")}
	_, err := NewScheduler(worker, store, nil, nil).Run(context.Background(), descriptors(3))
	assert.Error(t, err)
	assert.Zero(t, calls.Load())
}
