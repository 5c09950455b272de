package ports

import (
	"context"

	"github.com/paheweb/backend/internal/domain"
)

type QueueService interface {
	Add(input AddTaskInput) (*domain.Task, error)
	BatchAdd(input BatchAddInput) (int, error)
	Cancel(taskID string) bool
	RetryFailed() int
	ClearCompleted() int
	Status() domain.QueueSnapshot
}

type AddTaskInput struct {
	AnimeSession string
	AnimeTitle   string
	Episode      float64
	Resolution   int
	Filename     string
	URL          string
}

type BatchAddInput struct {
	AnimeSession string
	AnimeTitle   string
	StartEpisode int
	EndEpisode   int
	Resolution   int
}

type SettingsService interface {
	Current() domain.QueueSettings
	Update(ctx context.Context, input UpdateSettingsInput) (domain.QueueSettings, error)
}

type UpdateSettingsInput struct {
	MaxWorkers        *int
	DownloadPath      *string
	DefaultResolution *int
}

type Broadcaster interface {
	Publish(event domain.Event)
	Subscribe() *Subscription
	Unsubscribe(sub *Subscription)
}

// Subscription is one observer's bounded outbound buffer. When the buffer is
// full the oldest undelivered event is dropped; the next full status snapshot
// re-syncs the observer.
type Subscription struct {
	Events chan domain.Event
}

// FetchCheckpoint is one progress sample from a Fetcher. Every checkpoint is
// also a cancellation point for the consuming worker.
type FetchCheckpoint struct {
	BytesSoFar int64
	TotalBytes int64
	Speed      float64
}

type FetchRequest struct {
	URL          string
	AnimeSession string
	Episode      float64
	Resolution   int
	// DestDir and Filename locate the output file. Fetchers may refine
	// Filename from response metadata.
	DestDir  string
	Filename string
}

// Fetcher performs the actual transfer. It sends a finite sequence of
// checkpoints on the channel and returns nil on success. The channel is owned
// by the caller and must not be closed by the Fetcher. A Fetcher must observe
// ctx between checkpoints so cancellation latency stays bounded.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest, checkpoints chan<- FetchCheckpoint) error
}
