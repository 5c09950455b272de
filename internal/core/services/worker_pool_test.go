package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paheweb/backend/internal/core/ports"
)

// stubFetcher drives the pool with scripted behavior.
type stubFetcher struct {
	fetch func(ctx context.Context, req ports.FetchRequest, checkpoints chan<- ports.FetchCheckpoint) error

	concurrent    atomic.Int32
	maxConcurrent atomic.Int32
}

func (f *stubFetcher) Fetch(ctx context.Context, req ports.FetchRequest, checkpoints chan<- ports.FetchCheckpoint) error {
	current := f.concurrent.Add(1)
	defer f.concurrent.Add(-1)
	for {
		observed := f.maxConcurrent.Load()
		if current <= observed || f.maxConcurrent.CompareAndSwap(observed, current) {
			break
		}
	}
	if f.fetch != nil {
		return f.fetch(ctx, req, checkpoints)
	}
	return nil
}

func newTestPool(t *testing.T, maxWorkers int, fetcher ports.Fetcher) (*WorkerPool, *QueueService) {
	t.Helper()
	settings := newFixedSettings(maxWorkers, t.TempDir())
	queue := NewQueueService(QueueServiceConfig{
		Settings: settings,
		Logger:   testLogger(),
	})
	pool := NewWorkerPool(WorkerPoolConfig{
		Queue:            queue,
		Settings:         settings,
		Fetcher:          fetcher,
		Logger:           testLogger(),
		DispatchInterval: 5 * time.Millisecond,
	})
	return pool, queue
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

func TestWorkerPool_DrainsQueue(t *testing.T) {
	fetcher := &stubFetcher{}
	pool, queue := newTestPool(t, 2, fetcher)

	for ep := 1; ep <= 5; ep++ {
		mustAdd(t, queue, "sess-1", float64(ep))
	}

	ctx, cancel := context.WithCancel(context.Background())
	poolDone := make(chan struct{})
	go func() {
		defer close(poolDone)
		pool.Run(ctx)
	}()

	waitFor(t, 2*time.Second, func() bool {
		return queue.Status().CompletedCount == 5
	})

	status := queue.Status()
	if status.PendingCount != 0 || status.ActiveCount != 0 || status.FailedCount != 0 {
		t.Errorf("unexpected residue: pending=%d active=%d failed=%d",
			status.PendingCount, status.ActiveCount, status.FailedCount)
	}
	if !status.Running {
		t.Error("snapshot should report the pool running")
	}

	cancel()
	<-poolDone
	if queue.Status().Running {
		t.Error("snapshot should report the pool stopped after shutdown")
	}
}

func TestWorkerPool_ConcurrencyBound(t *testing.T) {
	release := make(chan struct{})
	fetcher := &stubFetcher{
		fetch: func(ctx context.Context, _ ports.FetchRequest, _ chan<- ports.FetchCheckpoint) error {
			select {
			case <-release:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}
	pool, queue := newTestPool(t, 2, fetcher)

	for ep := 1; ep <= 5; ep++ {
		mustAdd(t, queue, "sess-1", float64(ep))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pool.Run(ctx)

	waitFor(t, 2*time.Second, func() bool {
		return fetcher.concurrent.Load() == 2
	})
	// Give the dispatcher a few cycles to (wrongly) start a third worker.
	time.Sleep(30 * time.Millisecond)
	if got := fetcher.maxConcurrent.Load(); got > 2 {
		t.Fatalf("observed %d concurrent fetches, bound is 2", got)
	}
	if got := queue.Status().ActiveCount; got != 2 {
		t.Errorf("active_count = %d, expected 2", got)
	}

	close(release)
	waitFor(t, 2*time.Second, func() bool {
		return queue.Status().CompletedCount == 5
	})
	if got := fetcher.maxConcurrent.Load(); got > 2 {
		t.Errorf("observed %d concurrent fetches, bound is 2", got)
	}
}

func TestWorkerPool_RaisedBoundAppliesToNextClaim(t *testing.T) {
	release := make(chan struct{})
	fetcher := &stubFetcher{
		fetch: func(ctx context.Context, _ ports.FetchRequest, _ chan<- ports.FetchCheckpoint) error {
			select {
			case <-release:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}
	pool, queue := newTestPool(t, 1, fetcher)
	settings := pool.settings.(*fixedSettings)

	mustAdd(t, queue, "sess-1", 1)
	mustAdd(t, queue, "sess-1", 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pool.Run(ctx)

	waitFor(t, 2*time.Second, func() bool {
		return fetcher.concurrent.Load() == 1
	})
	time.Sleep(20 * time.Millisecond)
	if got := fetcher.concurrent.Load(); got != 1 {
		t.Fatalf("concurrent fetches = %d, expected 1 before the bound is raised", got)
	}

	two := 2
	if _, err := settings.Update(context.Background(), ports.UpdateSettingsInput{MaxWorkers: &two}); err != nil {
		t.Fatalf("settings update failed: %v", err)
	}

	// The next dispatch tick picks up the new bound without restarting anything.
	waitFor(t, 2*time.Second, func() bool {
		return fetcher.concurrent.Load() == 2
	})

	close(release)
	waitFor(t, 2*time.Second, func() bool {
		return queue.Status().CompletedCount == 2
	})
}

func TestWorkerPool_CancelStopsDownload(t *testing.T) {
	started := make(chan string, 1)
	fetcher := &stubFetcher{
		fetch: func(ctx context.Context, req ports.FetchRequest, checkpoints chan<- ports.FetchCheckpoint) error {
			started <- req.URL
			for i := int64(1); ; i++ {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case checkpoints <- ports.FetchCheckpoint{BytesSoFar: i * 10, TotalBytes: 1000}:
				}
				time.Sleep(time.Millisecond)
			}
		},
	}
	pool, queue := newTestPool(t, 1, fetcher)

	task, err := queue.Add(ports.AddTaskInput{
		AnimeTitle: "Test Anime",
		Episode:    1,
		Resolution: 1080,
		URL:        "https://example.com/ep1.mp4",
	})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pool.Run(ctx)

	<-started
	if !queue.Cancel(task.ID) {
		t.Fatal("Cancel should report the task exists")
	}

	waitFor(t, 2*time.Second, func() bool {
		return queue.Status().StoppedCount == 1
	})
	status := queue.Status()
	if status.CompletedCount != 0 || status.FailedCount != 0 {
		t.Errorf("cancelled task leaked into completed=%d failed=%d",
			status.CompletedCount, status.FailedCount)
	}
}

func TestWorkerPool_PanicMarksTaskFailed(t *testing.T) {
	var calls atomic.Int32
	fetcher := &stubFetcher{
		fetch: func(_ context.Context, _ ports.FetchRequest, _ chan<- ports.FetchCheckpoint) error {
			if calls.Add(1) == 1 {
				panic("bad playlist")
			}
			return nil
		},
	}
	pool, queue := newTestPool(t, 1, fetcher)

	mustAdd(t, queue, "sess-1", 1)
	mustAdd(t, queue, "sess-1", 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pool.Run(ctx)

	// The panic is contained: the first task fails, the second still completes.
	waitFor(t, 2*time.Second, func() bool {
		status := queue.Status()
		return status.FailedCount == 1 && status.CompletedCount == 1
	})

	status := queue.Status()
	if len(status.Failed) != 1 {
		t.Fatalf("failed list length = %d, expected 1", len(status.Failed))
	}
	if status.Failed[0].Error == "" {
		t.Error("failed task should carry an error message")
	}
}

func TestWorkerPool_FailedTaskRetriesToCompletion(t *testing.T) {
	var attempts sync.Map
	fetcher := &stubFetcher{
		fetch: func(_ context.Context, req ports.FetchRequest, _ chan<- ports.FetchCheckpoint) error {
			count, _ := attempts.LoadOrStore(req.URL, new(atomic.Int32))
			if count.(*atomic.Int32).Add(1) == 1 {
				return errors.New("connection reset")
			}
			return nil
		},
	}
	pool, queue := newTestPool(t, 1, fetcher)

	task, err := queue.Add(ports.AddTaskInput{
		AnimeTitle: "Test Anime",
		Episode:    1,
		Resolution: 1080,
		URL:        "https://example.com/ep1.mp4",
	})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pool.Run(ctx)

	waitFor(t, 2*time.Second, func() bool {
		return queue.Status().FailedCount == 1
	})

	if count := queue.RetryFailed(); count != 1 {
		t.Fatalf("RetryFailed = %d, expected 1", count)
	}
	waitFor(t, 2*time.Second, func() bool {
		return queue.Status().CompletedCount == 1
	})

	status := queue.Status()
	if status.Completed[0].ID != task.ID {
		t.Errorf("completed task = %s, expected %s", status.Completed[0].ID, task.ID)
	}
}

func TestWorkerPool_ShutdownWaitsForWorkers(t *testing.T) {
	inFlight := make(chan struct{})
	finished := atomic.Bool{}
	fetcher := &stubFetcher{
		fetch: func(ctx context.Context, _ ports.FetchRequest, _ chan<- ports.FetchCheckpoint) error {
			close(inFlight)
			<-ctx.Done()
			time.Sleep(10 * time.Millisecond)
			finished.Store(true)
			return ctx.Err()
		},
	}
	pool, queue := newTestPool(t, 1, fetcher)
	mustAdd(t, queue, "sess-1", 1)

	ctx, cancel := context.WithCancel(context.Background())
	poolDone := make(chan struct{})
	go func() {
		defer close(poolDone)
		pool.Run(ctx)
	}()

	<-inFlight
	cancel()
	select {
	case <-poolDone:
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not shut down")
	}
	if !finished.Load() {
		t.Error("Run returned before the in-flight worker finished")
	}

	waitFor(t, time.Second, func() bool {
		return queue.Status().FailedCount == 1
	})
	if pool.ActiveCount() != 0 {
		t.Errorf("active workers after shutdown = %d, expected 0", pool.ActiveCount())
	}
}
