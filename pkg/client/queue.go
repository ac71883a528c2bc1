package client

import (
	"context"
	"sync"
	"time"

	"github.com/aeolun/auboutique/pkg/protocol"
)

// PushQueue buffers chat pushes between the agent's reader and the UI.
// It is unbounded and never blocks the producer.
type PushQueue struct {
	mu    sync.Mutex
	items []*protocol.ChatPush
}

// NewPushQueue creates an empty queue
func NewPushQueue() *PushQueue {
	return &PushQueue{}
}

// Push appends a push to the tail.
func (q *PushQueue) Push(p *protocol.ChatPush) {
	q.mu.Lock()
	q.items = append(q.items, p)
	q.mu.Unlock()
}

// TryPop removes the head without waiting.
func (q *PushQueue) TryPop() (*protocol.ChatPush, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	p := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return p, true
}

// Drain removes and returns everything queued, oldest first.
func (q *PushQueue) Drain() []*protocol.ChatPush {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// Len returns the number of queued pushes.
func (q *PushQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Pump drains q every interval and hands each push to fn, in arrival order,
// until ctx is done. fn runs on the pump's goroutine.
func Pump(ctx context.Context, q *PushQueue, interval time.Duration, fn func(*protocol.ChatPush)) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for p, ok := q.TryPop(); ok; p, ok = q.TryPop() {
				fn(p)
			}
		}
	}
}
