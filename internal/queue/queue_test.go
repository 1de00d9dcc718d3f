package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Sarmad-dev/pivot-pus-sub000/internal/domain"
)

func entryFor(id, org string, tier domain.SubscriptionTier) domain.SimulationQueueEntry {
	return domain.SimulationQueueEntry{
		SimulationID: id,
		Request: domain.SimulationRequest{
			CampaignID:     "camp-" + id,
			OrganizationID: org,
			Tier:           tier,
		},
	}
}

// recordingExecutor tracks execution order and lets tests block jobs.
type recordingExecutor struct {
	mu      sync.Mutex
	started []string
	release chan struct{}
	fail    map[string]error
}

func newRecordingExecutor() *recordingExecutor {
	return &recordingExecutor{release: make(chan struct{}), fail: map[string]error{}}
}

func (r *recordingExecutor) run(ctx context.Context, entry domain.SimulationQueueEntry, _ ProgressFn) error {
	r.mu.Lock()
	r.started = append(r.started, entry.SimulationID)
	r.mu.Unlock()
	select {
	case <-r.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	if err, ok := r.fail[entry.SimulationID]; ok {
		return err
	}
	return nil
}

func (r *recordingExecutor) startedIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.started...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}

func TestSubmitEnforcesFreeTierLimit(t *testing.T) {
	t.Parallel()
	q := New(Config{}, func(context.Context, domain.SimulationQueueEntry, ProgressFn) error { return nil }, nil, nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := q.Submit(ctx, entryFor(fmt.Sprintf("sim-%d", i), "org-free", domain.TierFree)); err != nil {
			t.Fatalf("submission %d should be admitted: %v", i, err)
		}
	}
	err := q.Submit(ctx, entryFor("sim-3", "org-free", domain.TierFree))
	if !errors.Is(err, domain.ErrQueueLimitExceeded) {
		t.Fatalf("fourth free-tier submission should be rejected, got %v", err)
	}
	// Another organization is unaffected.
	if err := q.Submit(ctx, entryFor("sim-other", "org-2", domain.TierFree)); err != nil {
		t.Fatalf("other organization should be admitted: %v", err)
	}
}

func TestSubmitAssignsTierPriority(t *testing.T) {
	t.Parallel()
	q := New(Config{}, func(context.Context, domain.SimulationQueueEntry, ProgressFn) error { return nil }, nil, nil)
	ctx := context.Background()
	if err := q.Submit(ctx, entryFor("sim-ent", "org-1", domain.TierEnterprise)); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	entry, ok := q.Status("sim-ent")
	if !ok {
		t.Fatalf("expected live status")
	}
	if entry.Priority != 90 {
		t.Fatalf("enterprise priority should be 90, got %d", entry.Priority)
	}
	if entry.Status != domain.StatusQueued {
		t.Fatalf("expected queued status, got %v", entry.Status)
	}
}

func TestDispatchHighestPriorityFirstFIFOWithin(t *testing.T) {
	t.Parallel()
	exec := newRecordingExecutor()
	close(exec.release)
	q := New(Config{Concurrency: 1}, exec.run, nil, nil)
	ctx := context.Background()

	if err := q.Submit(ctx, entryFor("free-1", "org-a", domain.TierFree)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := q.Submit(ctx, entryFor("ent-1", "org-b", domain.TierEnterprise)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := q.Submit(ctx, entryFor("ent-2", "org-c", domain.TierEnterprise)); err != nil {
		t.Fatalf("submit: %v", err)
	}

	// With a single slot each dispatch starts exactly one job, so the
	// recorded order is the scheduling order.
	for want := 1; want <= 3; want++ {
		q.Dispatch(ctx)
		waitFor(t, func() bool { return len(exec.startedIDs()) >= want })
		waitFor(t, func() bool {
			q.mu.Lock()
			defer q.mu.Unlock()
			return q.running == 0
		})
	}
	started := exec.startedIDs()
	if started[0] != "ent-1" || started[1] != "ent-2" || started[2] != "free-1" {
		t.Fatalf("expected priority order ent-1, ent-2, free-1; got %v", started)
	}
}

func TestConcurrencyCapHoldsJobsBack(t *testing.T) {
	t.Parallel()
	exec := newRecordingExecutor()
	q := New(Config{Concurrency: 5}, exec.run, nil, nil)
	ctx := context.Background()
	for i := 0; i < 7; i++ {
		if err := q.Submit(ctx, entryFor(fmt.Sprintf("sim-%d", i), fmt.Sprintf("org-%d", i), domain.TierPro)); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	q.Dispatch(ctx)
	waitFor(t, func() bool { return len(exec.startedIDs()) == 5 })
	// A second dispatch with all slots busy starts nothing new.
	q.Dispatch(ctx)
	time.Sleep(20 * time.Millisecond)
	if got := len(exec.startedIDs()); got != 5 {
		t.Fatalf("concurrency cap violated: %d jobs running", got)
	}
	close(exec.release)
}

// countingStore is a no-op durable mirror that tallies calls.
type countingStore struct {
	mu      sync.Mutex
	upserts int
}

func (s *countingStore) Upsert(context.Context, domain.SimulationQueueEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	return nil
}

func (s *countingStore) Delete(context.Context, string) error { return nil }

func (s *countingStore) ListPending(context.Context) ([]domain.SimulationQueueEntry, error) {
	return nil, nil
}

// Dispatch mirrors started entries after releasing the lock while workers
// already mutate their live entries through the progress callback. Run with
// the race detector to verify the mirror reads a snapshot, not shared state.
func TestDispatchMirrorsSnapshotWhileWorkersReportProgress(t *testing.T) {
	t.Parallel()
	store := &countingStore{}
	exec := func(ctx context.Context, entry domain.SimulationQueueEntry, progress ProgressFn) error {
		for pct := 1; pct <= 99; pct++ {
			progress("predict", pct)
		}
		return nil
	}
	q := New(Config{Concurrency: 64}, exec, store, nil)
	ctx := context.Background()

	for round := 0; round < 50; round++ {
		for i := 0; i < 64; i++ {
			id := fmt.Sprintf("sim-%d-%d", round, i)
			if err := q.Submit(ctx, entryFor(id, fmt.Sprintf("org-%d", i), domain.TierEnterprise)); err != nil {
				t.Fatalf("submit %s: %v", id, err)
			}
		}
		q.Dispatch(ctx)
		waitFor(t, func() bool {
			q.mu.Lock()
			defer q.mu.Unlock()
			return q.running == 0 && len(q.jobs) == 0
		})
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if store.upserts != 50*64*2 {
		t.Fatalf("expected one submit and one start upsert per job, got %d", store.upserts)
	}
}

func TestCancelQueuedJobRemovesIt(t *testing.T) {
	t.Parallel()
	q := New(Config{}, func(context.Context, domain.SimulationQueueEntry, ProgressFn) error { return nil }, nil, nil)
	ctx := context.Background()
	if err := q.Submit(ctx, entryFor("sim-1", "org-1", domain.TierPro)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !q.Cancel(ctx, "sim-1") {
		t.Fatalf("cancel of a queued job should succeed")
	}
	if _, ok := q.Status("sim-1"); ok {
		t.Fatalf("cancelled job should leave the live queue")
	}
	if q.Cancel(ctx, "sim-1") {
		t.Fatalf("second cancel should report false")
	}
}

func TestCancelProcessingJobPropagatesContext(t *testing.T) {
	t.Parallel()
	exec := newRecordingExecutor()
	q := New(Config{Concurrency: 1}, exec.run, nil, nil)
	ctx := context.Background()
	if err := q.Submit(ctx, entryFor("sim-1", "org-1", domain.TierPro)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	q.Dispatch(ctx)
	waitFor(t, func() bool { return len(exec.startedIDs()) == 1 })
	if !q.Cancel(ctx, "sim-1") {
		t.Fatalf("cancel of a processing job should succeed")
	}
	waitFor(t, func() bool {
		_, ok := q.Status("sim-1")
		return !ok
	})
}

func TestFailedExecutorMarksJobFailed(t *testing.T) {
	t.Parallel()
	exec := newRecordingExecutor()
	exec.fail["sim-1"] = errors.New("provider exploded")
	close(exec.release)
	q := New(Config{Concurrency: 1}, exec.run, nil, nil)
	ctx := context.Background()
	if err := q.Submit(ctx, entryFor("sim-1", "org-1", domain.TierPro)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	q.Dispatch(ctx)
	waitFor(t, func() bool {
		_, ok := q.Status("sim-1")
		return !ok
	})
	// Failure is terminal: the job cannot be cancelled afterwards.
	if q.Cancel(ctx, "sim-1") {
		t.Fatalf("terminal job should not be cancellable")
	}
}
