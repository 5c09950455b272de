package services

import (
	"context"
	"sync"
	"time"

	"github.com/paheweb/backend/internal/core/ports"
	"github.com/paheweb/backend/internal/domain"
	"github.com/paheweb/backend/internal/infrastructure/logger"
)

const (
	defaultSubscriberBuffer  = 32
	defaultHeartbeatInterval = 30 * time.Second
)

// ProgressBroadcaster fans task events out to every connected observer. Each
// subscriber has its own bounded buffer; when it fills, the oldest undelivered
// event is dropped and the observer re-syncs from the next status snapshot.
// A slow observer therefore never blocks delivery to others.
type ProgressBroadcaster struct {
	mu   sync.RWMutex
	subs map[*ports.Subscription]struct{}

	logger            *logger.Logger
	bufferSize        int
	heartbeatInterval time.Duration
}

type BroadcasterConfig struct {
	Logger            *logger.Logger
	BufferSize        int
	HeartbeatInterval time.Duration
}

func NewProgressBroadcaster(cfg BroadcasterConfig) *ProgressBroadcaster {
	size := cfg.BufferSize
	if size <= 0 {
		size = defaultSubscriberBuffer
	}
	interval := cfg.HeartbeatInterval
	if interval <= 0 {
		interval = defaultHeartbeatInterval
	}
	return &ProgressBroadcaster{
		subs:              make(map[*ports.Subscription]struct{}),
		logger:            cfg.Logger,
		bufferSize:        size,
		heartbeatInterval: interval,
	}
}

// Run emits heartbeats until ctx is cancelled, so observers can tell an idle
// queue from a dead connection.
func (b *ProgressBroadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(b.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.Publish(domain.Event{Type: domain.EventHeartbeat})
		}
	}
}

func (b *ProgressBroadcaster) Subscribe() *ports.Subscription {
	sub := &ports.Subscription{Events: make(chan domain.Event, b.bufferSize)}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	count := len(b.subs)
	b.mu.Unlock()
	b.logger.Infow("broadcaster_subscribed", "observers", count)
	return sub
}

func (b *ProgressBroadcaster) Unsubscribe(sub *ports.Subscription) {
	b.mu.Lock()
	delete(b.subs, sub)
	count := len(b.subs)
	b.mu.Unlock()
	b.logger.Infow("broadcaster_unsubscribed", "observers", count)
}

// SubscriberCount reports the number of connected observers.
func (b *ProgressBroadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish delivers the event to every subscriber without ever blocking.
func (b *ProgressBroadcaster) Publish(event domain.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		select {
		case sub.Events <- event:
			continue
		default:
		}
		// Buffer full: drop the oldest undelivered event to make room.
		select {
		case <-sub.Events:
		default:
		}
		select {
		case sub.Events <- event:
		default:
		}
	}
}
