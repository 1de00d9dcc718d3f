package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Sarmad-dev/pivot-pus-sub000/internal/domain"
	"github.com/Sarmad-dev/pivot-pus-sub000/internal/ports"
)

type Config struct {
	// Concurrency caps simultaneously running jobs.
	Concurrency int
	// TickInterval is the scheduler period.
	TickInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = 5
	}
	if c.TickInterval <= 0 {
		c.TickInterval = 2 * time.Second
	}
	return c
}

// ProgressFn reports a job's named pipeline step and percentage complete.
type ProgressFn func(step string, pct int)

// Executor runs one simulation job. The context is cancelled on external
// cancellation; executors check it between pipeline steps.
type Executor func(ctx context.Context, entry domain.SimulationQueueEntry, progress ProgressFn) error

type jobState struct {
	entry  domain.SimulationQueueEntry
	cancel context.CancelFunc
}

// Queue admits, prioritizes, and executes simulation jobs. Admission is
// tier-limited per organization; dispatch is highest-priority-first with FIFO
// ordering inside a priority level.
type Queue struct {
	cfg      Config
	executor Executor
	store    ports.QueueStore // optional durable mirror
	logger   *slog.Logger
	nowFn    func() time.Time

	mu      sync.Mutex
	jobs    map[string]*jobState
	pending []string // simulation ids in submission order
	running int
}

func New(cfg Config, executor Executor, store ports.QueueStore, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		cfg:      cfg.withDefaults(),
		executor: executor,
		store:    store,
		logger:   logger,
		nowFn:    func() time.Time { return time.Now().UTC() },
		jobs:     map[string]*jobState{},
	}
}

// Submit admits a job if the organization is under its tier's queued ceiling.
func (q *Queue) Submit(ctx context.Context, entry domain.SimulationQueueEntry) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	limit := entry.Request.Tier.QueueLimit()
	queued := 0
	for _, j := range q.jobs {
		if j.entry.Status == domain.StatusQueued && j.entry.Request.OrganizationID == entry.Request.OrganizationID {
			queued++
		}
	}
	if queued >= limit {
		return fmt.Errorf("%w: organization %s has %d of %d queued simulations",
			domain.ErrQueueLimitExceeded, entry.Request.OrganizationID, queued, limit)
	}

	entry.Status = domain.StatusQueued
	entry.Priority = entry.Request.Tier.Priority()
	entry.SubmittedAt = q.nowFn()
	q.jobs[entry.SimulationID] = &jobState{entry: entry}
	q.pending = append(q.pending, entry.SimulationID)
	q.mirror(ctx, entry)
	return nil
}

// Status returns the live queue entry, if the job is still tracked.
func (q *Queue) Status(simulationID string) (domain.SimulationQueueEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[simulationID]
	if !ok {
		return domain.SimulationQueueEntry{}, false
	}
	return j.entry, true
}

// Cancel stops a queued or processing job. It reports false when the job is
// unknown or already terminal. Running jobs are cancelled cooperatively
// through their context.
func (q *Queue) Cancel(ctx context.Context, simulationID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.jobs[simulationID]
	if !ok || j.entry.Status.Terminal() {
		return false
	}
	switch j.entry.Status {
	case domain.StatusQueued:
		q.finishLocked(ctx, j, domain.StatusCancelled)
		return true
	case domain.StatusProcessing:
		if j.cancel != nil {
			j.cancel()
		}
		return true
	default:
		return false
	}
}

// QueuedCount reports queued jobs for an organization, for observability.
func (q *Queue) QueuedCount(organizationID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, j := range q.jobs {
		if j.entry.Status == domain.StatusQueued && j.entry.Request.OrganizationID == organizationID {
			n++
		}
	}
	return n
}

// Run drives the scheduler loop until context cancellation. Each tick pulls
// the highest-priority eligible jobs into the available concurrency slots.
func (q *Queue) Run(ctx context.Context) error {
	ticker := time.NewTicker(q.cfg.TickInterval)
	defer ticker.Stop()

	for {
		q.dispatch(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Dispatch is exported for callers that drive the scheduler manually, such
// as tests and the orchestrator's inline mode.
func (q *Queue) Dispatch(ctx context.Context) {
	q.dispatch(ctx)
}

func (q *Queue) dispatch(ctx context.Context) {
	q.mu.Lock()
	slots := q.cfg.Concurrency - q.running
	if slots <= 0 || len(q.pending) == 0 {
		q.mu.Unlock()
		return
	}

	// Highest priority first; FIFO within a priority level. The pending
	// slice preserves submission order, so a stable sort suffices.
	eligible := make([]string, 0, len(q.pending))
	for _, id := range q.pending {
		if j, ok := q.jobs[id]; ok && j.entry.Status == domain.StatusQueued {
			eligible = append(eligible, id)
		}
	}
	sort.SliceStable(eligible, func(a, b int) bool {
		return q.jobs[eligible[a]].entry.Priority > q.jobs[eligible[b]].entry.Priority
	})

	// Snapshot the started entries while still holding the lock; the worker
	// goroutines mutate j.entry concurrently once running.
	var started []domain.SimulationQueueEntry
	for _, id := range eligible {
		if slots == 0 {
			break
		}
		j := q.jobs[id]
		now := q.nowFn()
		j.entry.Status = domain.StatusProcessing
		j.entry.StartedAt = &now
		jobCtx, cancel := context.WithCancel(ctx)
		j.cancel = cancel
		q.running++
		slots--
		started = append(started, j.entry)
		go q.execute(jobCtx, j)
	}
	q.rebuildPendingLocked()
	q.mu.Unlock()

	for _, entry := range started {
		q.mirror(ctx, entry)
	}
}

func (q *Queue) execute(ctx context.Context, j *jobState) {
	entry := func() domain.SimulationQueueEntry {
		q.mu.Lock()
		defer q.mu.Unlock()
		return j.entry
	}()

	progress := func(step string, pct int) {
		q.mu.Lock()
		defer q.mu.Unlock()
		j.entry.CurrentStep = step
		if pct > j.entry.Progress && pct <= 100 {
			j.entry.Progress = pct
		}
	}

	err := q.executor(ctx, entry, progress)

	q.mu.Lock()
	defer q.mu.Unlock()
	q.running--
	switch {
	case err == nil:
		j.entry.Progress = 100
		q.finishLocked(ctx, j, domain.StatusCompleted)
	case errors.Is(err, context.Canceled):
		q.finishLocked(ctx, j, domain.StatusCancelled)
	default:
		q.logger.Error("simulation job failed",
			"module", "queue",
			"operation", "execute",
			"outcome", "failure",
			"simulation_id", j.entry.SimulationID,
			"error", err,
		)
		q.finishLocked(ctx, j, domain.StatusFailed)
	}
}

// finishLocked transitions a job to a terminal state and removes it from the
// live maps. Terminal results live in the ResultStore, not the queue.
func (q *Queue) finishLocked(ctx context.Context, j *jobState, status domain.SimulationStatus) {
	now := q.nowFn()
	j.entry.Status = status
	j.entry.FinishedAt = &now
	delete(q.jobs, j.entry.SimulationID)
	q.rebuildPendingLocked()
	if q.store != nil {
		// Durable mirror deletion is best-effort; the entry is terminal.
		go func(id string) {
			if err := q.store.Delete(context.WithoutCancel(ctx), id); err != nil {
				q.logger.Warn("queue store delete failed",
					"module", "queue", "simulation_id", id, "error", err)
			}
		}(j.entry.SimulationID)
	}
}

func (q *Queue) rebuildPendingLocked() {
	pending := q.pending[:0]
	for _, id := range q.pending {
		if j, ok := q.jobs[id]; ok && j.entry.Status == domain.StatusQueued {
			pending = append(pending, id)
		}
	}
	q.pending = pending
}

func (q *Queue) mirror(ctx context.Context, entry domain.SimulationQueueEntry) {
	if q.store == nil {
		return
	}
	if err := q.store.Upsert(context.WithoutCancel(ctx), entry); err != nil {
		q.logger.Warn("queue store upsert failed",
			"module", "queue",
			"simulation_id", entry.SimulationID,
			"error", err,
		)
	}
}
