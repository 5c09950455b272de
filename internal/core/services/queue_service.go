package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/paheweb/backend/internal/core/ports"
	"github.com/paheweb/backend/internal/domain"
	"github.com/paheweb/backend/internal/infrastructure/logger"
)

const defaultRecentLimit = 10

// QueueService owns the task table. All transitions go through its mutex, so
// no two workers ever act on the same task. Nothing suspends while the mutex
// is held: persistence writes and broadcasts operate on copies taken under
// the lock and run after it is released, so a slow database never stalls
// claims, checkpoints or status reads.
type QueueService struct {
	mu    sync.Mutex
	tasks map[string]*domain.Task
	order []string

	repo        ports.TaskRepository
	broadcaster ports.Broadcaster
	settings    ports.SettingsService
	logger      *logger.Logger

	recentLimit int
	running     atomic.Bool
	wake        chan struct{}
}

type QueueServiceConfig struct {
	Repo        ports.TaskRepository
	Broadcaster ports.Broadcaster
	Settings    ports.SettingsService
	Logger      *logger.Logger
	RecentLimit int
}

func NewQueueService(cfg QueueServiceConfig) *QueueService {
	limit := cfg.RecentLimit
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	return &QueueService{
		tasks:       make(map[string]*domain.Task),
		repo:        cfg.Repo,
		broadcaster: cfg.Broadcaster,
		settings:    cfg.Settings,
		logger:      cfg.Logger,
		recentLimit: limit,
		wake:        make(chan struct{}, 1),
	}
}

// Restore reloads the persisted table. Rows that were in flight when the
// process died are re-marked failed, never resumed silently.
func (s *QueueService) Restore(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	rows, err := s.repo.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("queue restore: %w", err)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].CreatedAt.Before(rows[j].CreatedAt)
	})

	s.mu.Lock()
	var dirty []domain.Task
	for i := range rows {
		task := rows[i]
		if task.Status.IsActive() {
			task.Status = domain.TaskStatusFailed
			task.Error = "download interrupted by restart"
			task.Speed = 0
			dirty = append(dirty, task)
		}
		s.tasks[task.ID] = &task
		s.order = append(s.order, task.ID)
	}
	s.mu.Unlock()

	for i := range dirty {
		s.persist(&dirty[i])
	}
	s.logger.Infow("queue_restored", "tasks", len(rows))
	return nil
}

// Add validates the input and appends a pending task in insertion order.
func (s *QueueService) Add(input ports.AddTaskInput) (*domain.Task, error) {
	if input.AnimeTitle == "" {
		return nil, ErrTaskInvalidInput
	}
	if input.Episode < 0 {
		return nil, ErrTaskInvalidInput
	}
	if input.Resolution < -1 {
		return nil, ErrInvalidResolution
	}

	filename := input.Filename
	if filename == "" {
		filename = fmt.Sprintf("EP%02d_%dp.mp4", int(input.Episode), input.Resolution)
	}

	now := time.Now()
	task := &domain.Task{
		ID:           uuid.New().String(),
		AnimeSession: input.AnimeSession,
		AnimeTitle:   input.AnimeTitle,
		Episode:      input.Episode,
		Resolution:   input.Resolution,
		Filename:     filename,
		URL:          input.URL,
		Status:       domain.TaskStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	s.mu.Lock()
	s.tasks[task.ID] = task
	s.order = append(s.order, task.ID)
	added := *task
	snapshot := s.statusLocked()
	s.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.Create(context.Background(), &added); err != nil {
			s.logger.Errorw("queue_persist_create_failed", "task_id", added.ID, "error", err)
		}
	}
	s.logger.Infow("queue_task_added", "task_id", added.ID, "anime", added.AnimeTitle, "episode", added.Episode)
	s.publish(domain.Event{Type: domain.EventProgress, Task: &added})
	s.publish(domain.Event{Type: domain.EventStatus, Queue: &snapshot})
	s.signal()
	return &added, nil
}

// BatchAdd expands a contiguous episode range into individual Add calls.
// Episodes already queued or in flight for the same anime are skipped, so
// re-submitting a range is idempotent. An empty or inverted range adds zero
// tasks and is not an error.
func (s *QueueService) BatchAdd(input ports.BatchAddInput) (int, error) {
	if input.AnimeTitle == "" {
		return 0, ErrTaskInvalidInput
	}
	start := input.StartEpisode
	if start < 1 {
		start = 1
	}
	added := 0
	for ep := start; ep <= input.EndEpisode; ep++ {
		if s.hasLiveEpisode(input.AnimeSession, float64(ep)) {
			continue
		}
		_, err := s.Add(ports.AddTaskInput{
			AnimeSession: input.AnimeSession,
			AnimeTitle:   input.AnimeTitle,
			Episode:      float64(ep),
			Resolution:   input.Resolution,
		})
		if err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}

func (s *QueueService) hasLiveEpisode(session string, episode float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, task := range s.tasks {
		if task.AnimeSession == session && task.Episode == episode && !task.Status.IsTerminal() {
			return true
		}
	}
	return false
}

// Cancel stops a task cooperatively. A pending task goes straight to stopped
// and is never claimed afterwards; a downloading task is flagged stopping and
// the owning worker converts it at its next checkpoint. Cancelling a terminal
// task is a no-op. Returns whether the task exists.
func (s *QueueService) Cancel(taskID string) bool {
	s.mu.Lock()
	task, ok := s.tasks[taskID]
	if !ok {
		s.mu.Unlock()
		return false
	}

	var changed *domain.Task
	switch task.Status {
	case domain.TaskStatusPending:
		now := time.Now()
		task.Status = domain.TaskStatusStopped
		task.Error = "cancelled before starting"
		task.UpdatedAt = now
		task.CompletedAt = &now
		copied := *task
		changed = &copied
	case domain.TaskStatusDownloading:
		task.Status = domain.TaskStatusStopping
		task.UpdatedAt = time.Now()
		copied := *task
		changed = &copied
	}
	snapshot := s.statusLocked()
	s.mu.Unlock()

	if changed != nil {
		s.persist(changed)
		s.logger.Infow("queue_task_cancelled", "task_id", taskID, "status", changed.Status)
		s.publish(domain.Event{Type: domain.EventProgress, Task: changed})
	}
	s.publish(domain.Event{Type: domain.EventStatus, Queue: &snapshot})
	return true
}

// RetryFailed requeues every failed task with progress reset to zero. Retried
// tasks keep their relative order but are appended after existing pending work.
func (s *QueueService) RetryFailed() int {
	s.mu.Lock()
	var retried []string
	var dirty []domain.Task
	remaining := s.order[:0:0]
	for _, id := range s.order {
		task := s.tasks[id]
		if task.Status != domain.TaskStatusFailed {
			remaining = append(remaining, id)
			continue
		}
		task.Status = domain.TaskStatusPending
		task.Progress = 0
		task.DownloadedBytes = 0
		task.TotalBytes = 0
		task.Speed = 0
		task.Error = ""
		task.StartedAt = nil
		task.CompletedAt = nil
		task.UpdatedAt = time.Now()
		dirty = append(dirty, *task)
		retried = append(retried, id)
	}
	s.order = append(remaining, retried...)
	count := len(retried)
	snapshot := s.statusLocked()
	s.mu.Unlock()

	for i := range dirty {
		s.persist(&dirty[i])
	}
	if count > 0 {
		s.logger.Infow("queue_retry_failed", "count", count)
		s.signal()
	}
	s.publish(domain.Event{Type: domain.EventStatus, Queue: &snapshot})
	return count
}

// ClearCompleted removes all terminal tasks from the table. In-flight and
// pending tasks are untouched.
func (s *QueueService) ClearCompleted() int {
	s.mu.Lock()
	var removed []string
	remaining := s.order[:0:0]
	for _, id := range s.order {
		if s.tasks[id].Status.IsTerminal() {
			delete(s.tasks, id)
			removed = append(removed, id)
			continue
		}
		remaining = append(remaining, id)
	}
	s.order = remaining
	count := len(removed)
	snapshot := s.statusLocked()
	s.mu.Unlock()

	if s.repo != nil && count > 0 {
		if err := s.repo.Delete(context.Background(), removed); err != nil {
			s.logger.Errorw("queue_persist_delete_failed", "count", count, "error", err)
		}
	}
	if count > 0 {
		s.logger.Infow("queue_cleared", "count", count)
	}
	s.publish(domain.Event{Type: domain.EventStatus, Queue: &snapshot})
	return count
}

// Status returns a consistent point-in-time projection of the table.
func (s *QueueService) Status() domain.QueueSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *QueueService) statusLocked() domain.QueueSnapshot {
	snapshot := domain.QueueSnapshot{
		Running:   s.running.Load(),
		Active:    []domain.Task{},
		Pending:   []domain.Task{},
		Completed: []domain.Task{},
		Failed:    []domain.Task{},
	}
	if s.settings != nil {
		snapshot.MaxWorkers = s.settings.Current().MaxWorkers
	}
	for _, id := range s.order {
		task := *s.tasks[id]
		switch task.Status {
		case domain.TaskStatusPending:
			snapshot.PendingCount++
			snapshot.Pending = append(snapshot.Pending, task)
		case domain.TaskStatusDownloading, domain.TaskStatusStopping:
			snapshot.ActiveCount++
			snapshot.Active = append(snapshot.Active, task)
		case domain.TaskStatusCompleted:
			snapshot.CompletedCount++
			snapshot.Completed = append(snapshot.Completed, task)
		case domain.TaskStatusFailed:
			snapshot.FailedCount++
			snapshot.Failed = append(snapshot.Failed, task)
		case domain.TaskStatusStopped:
			snapshot.StoppedCount++
			snapshot.Failed = append(snapshot.Failed, task)
		}
	}
	if len(snapshot.Completed) > s.recentLimit {
		snapshot.Completed = snapshot.Completed[len(snapshot.Completed)-s.recentLimit:]
	}
	if len(snapshot.Failed) > s.recentLimit {
		snapshot.Failed = snapshot.Failed[len(snapshot.Failed)-s.recentLimit:]
	}
	return snapshot
}

// Claim atomically hands the oldest pending task to a worker. The transition
// to downloading happens under the table lock, so two idle workers can never
// claim the same task.
func (s *QueueService) Claim() (*domain.Task, bool) {
	s.mu.Lock()
	for _, id := range s.order {
		task := s.tasks[id]
		if task.Status != domain.TaskStatusPending {
			continue
		}
		now := time.Now()
		task.Status = domain.TaskStatusDownloading
		task.StartedAt = &now
		task.UpdatedAt = now
		claimed := *task
		s.mu.Unlock()

		s.persist(&claimed)
		s.publish(domain.Event{Type: domain.EventProgress, Task: &claimed})
		return &claimed, true
	}
	s.mu.Unlock()
	return nil, false
}

// Checkpoint records one progress sample and reports whether cancellation has
// been requested. Progress never decreases while downloading.
func (s *QueueService) Checkpoint(taskID string, cp ports.FetchCheckpoint) bool {
	s.mu.Lock()
	task, ok := s.tasks[taskID]
	if !ok {
		s.mu.Unlock()
		return true
	}
	stopRequested := task.Status == domain.TaskStatusStopping
	if cp.TotalBytes > 0 {
		progress := float64(cp.BytesSoFar) / float64(cp.TotalBytes) * 100
		if progress > 100 {
			progress = 100
		}
		if progress > task.Progress {
			task.Progress = progress
		}
	}
	if cp.BytesSoFar > task.DownloadedBytes {
		task.DownloadedBytes = cp.BytesSoFar
	}
	if cp.TotalBytes > 0 {
		task.TotalBytes = cp.TotalBytes
	}
	task.Speed = cp.Speed
	task.UpdatedAt = time.Now()
	updated := *task
	s.mu.Unlock()

	s.publish(domain.Event{Type: domain.EventProgress, Task: &updated})
	return stopRequested
}

// Finish records the outcome of an execution. A task flagged stopping ends
// stopped regardless of the fetch outcome; a fetch error ends failed and
// stays retry-eligible.
func (s *QueueService) Finish(taskID string, fetchErr error) {
	s.mu.Lock()
	task, ok := s.tasks[taskID]
	if !ok {
		s.mu.Unlock()
		return
	}
	now := time.Now()
	switch {
	case task.Status == domain.TaskStatusStopping:
		task.Status = domain.TaskStatusStopped
		task.Error = "download stopped by user"
	case fetchErr != nil:
		task.Status = domain.TaskStatusFailed
		task.Error = fetchErr.Error()
	default:
		task.Status = domain.TaskStatusCompleted
		task.Progress = 100
	}
	task.Speed = 0
	task.UpdatedAt = now
	task.CompletedAt = &now
	finished := *task
	snapshot := s.statusLocked()
	s.mu.Unlock()

	s.persist(&finished)
	s.logger.Infow("queue_task_finished", "task_id", taskID, "status", finished.Status, "error", finished.Error)
	s.publish(domain.Event{Type: domain.EventProgress, Task: &finished})
	s.publish(domain.Event{Type: domain.EventStatus, Queue: &snapshot})
	s.signal()
}

// SetRunning flips the pool-running flag reported in snapshots.
func (s *QueueService) SetRunning(running bool) {
	s.running.Store(running)
}

// Wake returns the work-availability signal consumed by the pool.
func (s *QueueService) Wake() <-chan struct{} {
	return s.wake
}

func (s *QueueService) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *QueueService) publish(event domain.Event) {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.Publish(event)
}

// persist writes through to the repository. Callers pass a copy taken under
// the lock and call it after unlocking, so repository latency never stalls
// the table. Persistence failures are logged, never propagated: the
// in-memory table stays the source of truth.
func (s *QueueService) persist(task *domain.Task) {
	if s.repo == nil {
		return
	}
	if err := s.repo.Update(context.Background(), task); err != nil {
		s.logger.Errorw("queue_persist_update_failed", "task_id", task.ID, "error", err)
	}
}
