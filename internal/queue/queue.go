// Package queue holds the durable work queues that hand object identifiers
// from the loader to the migration workers.
package queue

import "context"

// Queue is a durable FIFO list of identifiers shared by every worker.
// Implementations must be safe for concurrent use by multiple callers and
// multiple processes.
type Queue interface {
	// Push appends id to the tail.
	Push(ctx context.Context, id string) error
	// Pop removes and returns the head. ok is false when the queue is empty;
	// Pop never waits for new items.
	Pop(ctx context.Context) (id string, ok bool, err error)
	// Len returns the current number of queued identifiers.
	Len(ctx context.Context) (int64, error)
	Close() error
}
