package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/datares-tracker/constants"
	"github.com/joseph-ayodele/datares-tracker/internal/aggregate"
	"github.com/joseph-ayodele/datares-tracker/internal/common"
	"github.com/joseph-ayodele/datares-tracker/internal/entity"
	"github.com/joseph-ayodele/datares-tracker/internal/progress"
)

// CheckpointFunc flushes the current tables.
type CheckpointFunc func(ctx context.Context, long []entity.Fact, wide []entity.WideRow) error

// EventType names a scheduler transition.
type EventType string

const (
	EventStarted  EventType = "started"
	EventFinished EventType = "finished"
	EventSkipped  EventType = "skipped"
)

// Event is published to the observer from the collector goroutine.
type Event struct {
	Type     EventType
	Identity string
	Status   constants.ProgressStatus
	Err      error
}

// Scheduler runs descriptors through a bounded worker pool. Workers only
// process; every progress write and aggregator update happens in one
// collector goroutine.
type Scheduler struct {
	worker Worker
	store  progress.Store
	agg    *aggregate.Aggregator
	logger *slog.Logger

	workers         int
	queueSize       int
	docTimeout      time.Duration
	checkpointEvery int
	checkpoint      CheckpointFunc
	observe         func(Event)
	now             func() time.Time
}

type Option func(*Scheduler)

func WithWorkers(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

func WithDocTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.docTimeout = d
		}
	}
}

// WithCheckpoint calls fn after every n completed documents (n <= 0 means
// never mid-run) and once when the run ends.
func WithCheckpoint(n int, fn CheckpointFunc) Option {
	return func(s *Scheduler) {
		s.checkpointEvery = n
		s.checkpoint = fn
	}
}

func WithObserver(fn func(Event)) Option {
	return func(s *Scheduler) {
		s.observe = fn
	}
}

func NewScheduler(w Worker, store progress.Store, agg *aggregate.Aggregator, logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if agg == nil {
		agg = aggregate.New()
	}
	s := &Scheduler{
		worker:     w,
		store:      store,
		agg:        agg,
		logger:     logger,
		workers:    common.DefaultWorkers,
		docTimeout: 3 * time.Minute,
		observe:    func(Event) {},
		now:        time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.queueSize <= 0 {
		s.queueSize = s.workers
	}
	if s.observe == nil {
		s.observe = func(Event) {}
	}
	return s
}

// Aggregator exposes the tables being built.
func (s *Scheduler) Aggregator() *aggregate.Aggregator { return s.agg }

type message struct {
	started bool
	desc    entity.Descriptor
	outcome Outcome
}

// Run processes descs. Descriptors already Done in the store are skipped and
// their stored facts replayed; everything else is dispatched in report date,
// then security code order. Cancelling ctx stops dispatch; documents already
// handed to a worker are finished and recorded. Per-document failures are
// counted in the summary, never returned.
func (s *Scheduler) Run(ctx context.Context, descs []entity.Descriptor) (Summary, error) {
	start := s.now()
	log := common.LoggerFromContext(ctx, s.logger)
	// progress writes must land even after ctx is cancelled
	persistCtx := context.WithoutCancel(ctx)

	entries, err := s.store.Load(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("load progress: %w", err)
	}

	var sum Summary
	todo := s.plan(descs, entries, &sum)
	log.Info("scheduler.start",
		"total", sum.Total,
		"skipped", sum.Skipped,
		"to_dispatch", len(todo),
		"duplicates", sum.Duplicates,
		"workers", s.workers,
	)

	jobs := make(chan entity.Descriptor, s.queueSize)
	msgs := make(chan message, s.workers)

	var g errgroup.Group
	g.Go(func() error {
		defer close(jobs)
		for _, t := range todo {
			if ctx.Err() != nil {
				return nil
			}
			if t.fresh {
				s.admit(persistCtx, t.desc)
			}
			select {
			case <-ctx.Done():
				return nil
			case jobs <- t.desc:
			}
		}
		return nil
	})

	var workers errgroup.Group
	for i := 0; i < s.workers; i++ {
		workerID := i + 1
		workers.Go(func() error {
			s.work(ctx, workerID, jobs, msgs)
			return nil
		})
	}
	g.Go(func() error {
		err := workers.Wait()
		close(msgs)
		return err
	})

	storeErr := s.collect(persistCtx, msgs, entries, &sum)
	if err := g.Wait(); err != nil {
		return sum, err
	}

	sum.NotDispatched = len(todo) - sum.Completed()
	if s.checkpoint != nil {
		if err := s.flush(persistCtx, &sum); err != nil {
			storeErr = errors.Join(storeErr, err)
		}
	}
	sum.Elapsed = s.now().Sub(start)
	sort.Slice(sum.Failures, func(i, j int) bool { return sum.Failures[i].Identity < sum.Failures[j].Identity })

	log.Info("scheduler.done",
		"succeeded", sum.Succeeded,
		"retried_succeeded", sum.RetriedSucceeded,
		"failed", sum.Failed,
		"skipped", sum.Skipped,
		"not_dispatched", sum.NotDispatched,
		"facts", sum.Facts,
		"elapsed_ms", sum.Elapsed.Milliseconds(),
	)
	if ctx.Err() != nil {
		log.Warn("scheduler.cancelled", "not_dispatched", sum.NotDispatched, "error", ctx.Err())
	}
	return sum, storeErr
}

type planned struct {
	desc  entity.Descriptor
	fresh bool // no progress entry yet
}

// plan dedupes and orders descs and replays Done entries. New descriptors are
// recorded as Pending by the dispatcher when they are admitted, so a run
// cancelled early leaves no entries for work it never reached.
func (s *Scheduler) plan(descs []entity.Descriptor, entries map[string]entity.ProgressEntry, sum *Summary) []planned {
	seen := make(map[string]struct{}, len(descs))
	unique := make([]entity.Descriptor, 0, len(descs))
	for _, d := range descs {
		id := d.Identity()
		if _, dup := seen[id]; dup {
			sum.Duplicates++
			s.logger.Debug("scheduler.duplicate", "identity", id)
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, d)
	}
	sort.SliceStable(unique, func(i, j int) bool { return unique[i].Less(unique[j]) })
	sum.Total = len(unique)

	todo := make([]planned, 0, len(unique))
	for _, d := range unique {
		id := d.Identity()
		e, known := entries[id]
		if known && e.Status == constants.StatusDone {
			s.agg.AddIdentity(id, d, e.Facts)
			sum.Skipped++
			sum.Facts += len(e.Facts)
			s.observe(Event{Type: EventSkipped, Identity: id, Status: constants.StatusDone})
			continue
		}
		if known && e.Status == constants.StatusInFlight {
			s.logger.Info("scheduler.resume.interrupted", "identity", id)
		}
		todo = append(todo, planned{desc: d, fresh: !known})
	}
	return todo
}

// admit records d as Pending. It runs on the dispatcher and never touches the
// collector's entry map; the write completes before d reaches a worker.
func (s *Scheduler) admit(ctx context.Context, d entity.Descriptor) {
	e := entity.ProgressEntry{Identity: d.Identity(), URL: d.URL, Status: constants.StatusPending}
	if err := s.store.Record(ctx, e); err != nil {
		s.logger.Error("scheduler.progress.write_failed", "identity", e.Identity, "status", e.Status, "error", err)
	}
}

func (s *Scheduler) work(ctx context.Context, workerID int, jobs <-chan entity.Descriptor, msgs chan<- message) {
	log := s.logger.With("worker_id", workerID)
	for d := range jobs {
		// a job may still be buffered after cancellation; leave it for the next run
		if ctx.Err() != nil {
			continue
		}
		msgs <- message{started: true, desc: d}

		docCtx := common.WithIdentity(context.WithoutCancel(ctx), d.Identity())
		docCtx, cancel := context.WithTimeout(docCtx, s.docTimeout)
		out := s.safeProcess(docCtx, log, d)
		cancel()
		msgs <- message{desc: d, outcome: out}
	}
}

func (s *Scheduler) safeProcess(ctx context.Context, log *slog.Logger, d entity.Descriptor) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("scheduler.worker.panic", "identity", d.Identity(), "panic", r)
			out = Outcome{Descriptor: d, Attempts: 1, Err: common.ExtractionError(fmt.Sprintf("panic: %v", r), nil)}
		}
	}()
	return s.worker.Process(ctx, d)
}

func (s *Scheduler) collect(ctx context.Context, msgs <-chan message, entries map[string]entity.ProgressEntry, sum *Summary) error {
	var storeErr error
	record := func(e entity.ProgressEntry) {
		entries[e.Identity] = e
		if err := s.store.Record(ctx, e); err != nil {
			s.logger.Error("scheduler.progress.write_failed", "identity", e.Identity, "status", e.Status, "error", err)
			storeErr = errors.Join(storeErr, err)
		}
	}

	sinceCheckpoint := 0
	for m := range msgs {
		id := m.desc.Identity()
		prev := entries[id]

		if m.started {
			e := prev
			e.Identity, e.URL = id, m.desc.URL
			e.Status = constants.StatusInFlight
			e.LastAttempt = s.now().UTC()
			record(e)
			s.observe(Event{Type: EventStarted, Identity: id, Status: e.Status})
			continue
		}

		out := m.outcome
		e := entity.ProgressEntry{
			Identity:    id,
			URL:         m.desc.URL,
			Attempts:    prev.Attempts + out.Attempts,
			Retried:     out.Attempts > 1,
			LastAttempt: s.now().UTC(),
		}
		sum.DiscardedMatches += out.Discarded
		if out.FromCache {
			sum.FromCache++
		}
		if out.OK() {
			e.Status = constants.StatusDone
			e.Facts = out.Facts
			s.agg.Add(m.desc, out.Facts)
			sum.Succeeded++
			sum.Facts += len(out.Facts)
			if e.Retried {
				sum.RetriedSucceeded++
			}
			s.logger.Info("scheduler.doc.done", "identity", id, "facts", len(out.Facts), "attempts", out.Attempts, "elapsed_ms", out.Elapsed.Milliseconds())
		} else {
			e.Status = constants.StatusFailed
			e.Reason = out.Err.Error()
			sum.Failed++
			sum.Failures = append(sum.Failures, Failure{Identity: id, URL: m.desc.URL, Reason: e.Reason})
			s.logger.Warn("scheduler.doc.failed", "identity", id, "attempts", out.Attempts, "error", out.Err)
		}
		record(e)
		s.observe(Event{Type: EventFinished, Identity: id, Status: e.Status, Err: out.Err})

		sinceCheckpoint++
		if s.checkpoint != nil && s.checkpointEvery > 0 && sinceCheckpoint >= s.checkpointEvery {
			sinceCheckpoint = 0
			if err := s.flush(ctx, sum); err != nil {
				s.logger.Error("scheduler.checkpoint.failed", "error", err)
			}
		}
	}
	return storeErr
}

func (s *Scheduler) flush(ctx context.Context, sum *Summary) error {
	long, wide := s.agg.Long(), s.agg.Wide()
	if err := s.checkpoint(ctx, long, wide); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	sum.Checkpoints++
	s.logger.Info("scheduler.checkpoint", "long_rows", len(long), "wide_rows", len(wide))
	return nil
}
