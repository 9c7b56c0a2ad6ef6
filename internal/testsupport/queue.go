package testsupport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrQueueDown is returned by a Queue after FailPush or FailPop
var ErrQueueDown = errors.New("queue unavailable")

// Queue is an in-memory queue.Queue
type Queue struct {
	mu       sync.Mutex
	items    []string
	failPush bool
	failPop  bool

	// AfterPop, when set, runs after every pop with its result
	AfterPop func(id string, ok bool)

	calls atomic.Int64
}

// NewQueue returns a queue holding ids in order
func NewQueue(ids ...string) *Queue {
	return &Queue{items: append([]string(nil), ids...)}
}

// FailPush makes every later push fail
func (q *Queue) FailPush() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failPush = true
}

// FailPop makes every later pop fail
func (q *Queue) FailPop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failPop = true
}

// Items returns a copy of the queued identifiers
func (q *Queue) Items() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.items...)
}

// Calls returns the number of push, pop and len calls made
func (q *Queue) Calls() int64 {
	return q.calls.Load()
}

func (q *Queue) Push(_ context.Context, id string) error {
	q.calls.Add(1)
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failPush {
		return ErrQueueDown
	}
	q.items = append(q.items, id)
	return nil
}

func (q *Queue) Pop(_ context.Context) (string, bool, error) {
	q.calls.Add(1)
	q.mu.Lock()
	if q.failPop {
		q.mu.Unlock()
		return "", false, ErrQueueDown
	}
	var (
		id string
		ok bool
	)
	if len(q.items) > 0 {
		id, ok = q.items[0], true
		q.items = q.items[1:]
	}
	hook := q.AfterPop
	q.mu.Unlock()

	if hook != nil {
		hook(id, ok)
	}
	return id, ok, nil
}

func (q *Queue) Len(_ context.Context) (int64, error) {
	q.calls.Add(1)
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.items)), nil
}

func (q *Queue) Close() error { return nil }
