package client

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aeolun/auboutique/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatPush(from, message string) *protocol.ChatPush {
	return &protocol.ChatPush{Type: protocol.MsgChat, From: from, Message: message, Timestamp: "12:00:00"}
}

func TestPushQueueFIFO(t *testing.T) {
	q := NewPushQueue()
	_, ok := q.TryPop()
	assert.False(t, ok, "empty queue must not block or yield")

	q.Push(chatPush("alice", "1"))
	q.Push(chatPush("alice", "2"))
	q.Push(chatPush("alice", "3"))
	assert.Equal(t, 3, q.Len())

	p, ok := q.TryPop()
	require.True(t, ok)
	assert.Equal(t, "1", p.Message)

	rest := q.Drain()
	require.Len(t, rest, 2)
	assert.Equal(t, "2", rest[0].Message)
	assert.Equal(t, "3", rest[1].Message)
	assert.Zero(t, q.Len())
	assert.Empty(t, q.Drain())
}

func TestPushQueueConcurrentProducers(t *testing.T) {
	q := NewPushQueue()
	const producers = 8
	const each = 500

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < each; i++ {
				q.Push(chatPush(fmt.Sprintf("user%d", p), fmt.Sprint(i)))
			}
		}(p)
	}

	popped := 0
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for {
		popped += len(q.Drain())
		select {
		case <-done:
			popped += len(q.Drain())
			assert.Equal(t, producers*each, popped)
			return
		default:
		}
	}
}

func TestPumpDeliversInOrder(t *testing.T) {
	q := NewPushQueue()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []string
	stopped := make(chan struct{})
	go func() {
		Pump(ctx, q, 5*time.Millisecond, func(p *protocol.ChatPush) {
			mu.Lock()
			got = append(got, p.Message)
			mu.Unlock()
		})
		close(stopped)
	}()

	for i := 0; i < 5; i++ {
		q.Push(chatPush("bob", fmt.Sprint(i)))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 5
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Equal(t, []string{"0", "1", "2", "3", "4"}, got)
	mu.Unlock()

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Pump did not stop on cancel")
	}
}
