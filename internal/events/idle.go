// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package events

import (
	"context"
	"sync"
)

// IdleQueue holds tasks that run the next time the session worker is idle.
// Tasks are keyed; posting a key that is already pending replaces nothing and
// returns false, so repeated keep-alive or reconnect requests collapse into one.
type IdleQueue struct {
	mu      sync.Mutex
	pending map[string]struct{}
	order   []idleTask
	notify  chan struct{}
}

type idleTask struct {
	key string
	fn  func(ctx context.Context)
}

// NewIdleQueue creates an empty queue.
func NewIdleQueue() *IdleQueue {
	return &IdleQueue{
		pending: make(map[string]struct{}),
		notify:  make(chan struct{}, 1),
	}
}

// Post queues fn under key. It reports whether the task was added.
func (q *IdleQueue) Post(key string, fn func(ctx context.Context)) bool {
	q.mu.Lock()
	if _, exists := q.pending[key]; exists {
		q.mu.Unlock()
		return false
	}
	q.pending[key] = struct{}{}
	q.order = append(q.order, idleTask{key: key, fn: fn})
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// Ready is signalled after a Post.
func (q *IdleQueue) Ready() <-chan struct{} { return q.notify }

// Pending returns the keys waiting to run, in posting order.
func (q *IdleQueue) Pending() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	keys := make([]string, len(q.order))
	for i, t := range q.order {
		keys[i] = t.key
	}
	return keys
}

// Drain runs every queued task in order and returns how many ran.
// Tasks posted while draining run in the same call.
func (q *IdleQueue) Drain(ctx context.Context) int {
	n := 0
	for {
		q.mu.Lock()
		if len(q.order) == 0 {
			q.mu.Unlock()
			return n
		}
		t := q.order[0]
		q.order = q.order[1:]
		delete(q.pending, t.key)
		q.mu.Unlock()

		t.fn(ctx)
		n++
	}
}
