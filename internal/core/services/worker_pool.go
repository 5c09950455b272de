package services

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/paheweb/backend/internal/core/ports"
	"github.com/paheweb/backend/internal/domain"
	"github.com/paheweb/backend/internal/infrastructure/logger"
)

const defaultDispatchInterval = 200 * time.Millisecond

// WorkerPool runs up to max_workers concurrent downloads. The bound is read
// from the settings store at every dispatch, so a settings change applies to
// the next claim without preempting running work.
type WorkerPool struct {
	queue    *QueueService
	settings ports.SettingsService
	fetcher  ports.Fetcher
	logger   *logger.Logger

	dispatchInterval time.Duration
	active           atomic.Int32
	wg               sync.WaitGroup
}

type WorkerPoolConfig struct {
	Queue            *QueueService
	Settings         ports.SettingsService
	Fetcher          ports.Fetcher
	Logger           *logger.Logger
	DispatchInterval time.Duration
}

func NewWorkerPool(cfg WorkerPoolConfig) *WorkerPool {
	interval := cfg.DispatchInterval
	if interval <= 0 {
		interval = defaultDispatchInterval
	}
	return &WorkerPool{
		queue:            cfg.Queue,
		settings:         cfg.Settings,
		fetcher:          cfg.Fetcher,
		logger:           cfg.Logger,
		dispatchInterval: interval,
	}
}

// Run dispatches pending work until ctx is cancelled, then waits for running
// workers to drain. Idle workers cost nothing: the loop sleeps on the queue's
// wake signal with a ticker as fallback, so wakeup latency stays bounded.
func (p *WorkerPool) Run(ctx context.Context) {
	p.queue.SetRunning(true)
	defer p.queue.SetRunning(false)

	ticker := time.NewTicker(p.dispatchInterval)
	defer ticker.Stop()

	p.dispatch(ctx)
	for {
		select {
		case <-ctx.Done():
			p.wg.Wait()
			return
		case <-p.queue.Wake():
			p.dispatch(ctx)
		case <-ticker.C:
			p.dispatch(ctx)
		}
	}
}

// ActiveCount reports how many executions are in flight.
func (p *WorkerPool) ActiveCount() int {
	return int(p.active.Load())
}

func (p *WorkerPool) dispatch(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if int(p.active.Load()) >= p.settings.Current().MaxWorkers {
			return
		}
		task, ok := p.queue.Claim()
		if !ok {
			return
		}
		p.active.Add(1)
		p.wg.Add(1)
		go p.run(ctx, task)
	}
}

// run executes a single claimed task. A panicking collaborator marks the task
// failed; it never takes down the pool.
func (p *WorkerPool) run(ctx context.Context, task *domain.Task) {
	defer p.wg.Done()
	defer p.active.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			p.logger.Errorw("worker_panic", "task_id", task.ID, "panic", r)
			p.queue.Finish(task.ID, fmt.Errorf("internal execution failure: %v", r))
		}
	}()

	settings := p.settings.Current()
	req := ports.FetchRequest{
		URL:          task.URL,
		AnimeSession: task.AnimeSession,
		Episode:      task.Episode,
		Resolution:   task.Resolution,
		DestDir:      filepath.Join(settings.DownloadPath, domain.SanitizeFilename(task.AnimeTitle)),
		Filename:     task.Filename,
	}

	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	checkpoints := make(chan ports.FetchCheckpoint, 16)
	done := make(chan error, 1)
	go func() {
		defer close(checkpoints)
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("internal execution failure: %v", r)
			}
		}()
		done <- p.fetcher.Fetch(fetchCtx, req, checkpoints)
	}()

	// Every checkpoint is a cancellation point: if the table says stopping,
	// tell the fetcher to wind down and let Finish record the stopped state.
	for cp := range checkpoints {
		if p.queue.Checkpoint(task.ID, cp) {
			cancel()
		}
	}
	p.queue.Finish(task.ID, <-done)
}
