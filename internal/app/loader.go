package app

import (
	"context"
	"errors"
	"fmt"

	"queuemigrate/internal/queue"
	"queuemigrate/internal/snapshot"

	"go.uber.org/zap"
)

// ErrQueueNotEmpty is returned when loading into a queue that already holds
// identifiers. Clear the queue by hand to reload, or run migrate to finish
// the current contents.
var ErrQueueNotEmpty = errors.New("queue already loaded")

// Loader pushes a snapshot into the queue
type Loader struct {
	queue  queue.Queue
	logger *zap.Logger
}

// NewLoader creates a loader for q
func NewLoader(q queue.Queue, logger *zap.Logger) *Loader {
	return &Loader{queue: q, logger: logger}
}

// Load pushes every identifier of the snapshot at path onto the queue tail,
// in file order. It refuses to touch a non-empty queue. A failure part way
// leaves the identifiers pushed so far in the queue.
func (l *Loader) Load(ctx context.Context, path string) (int64, error) {
	n, err := l.queue.Len(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read queue length: %w", err)
	}
	if n != 0 {
		return 0, fmt.Errorf("%w: %d identifiers queued", ErrQueueNotEmpty, n)
	}

	var pushed int64
	err = snapshot.Read(path, func(id string) error {
		if err := l.queue.Push(ctx, id); err != nil {
			return fmt.Errorf("failed to push %q: %w", id, err)
		}
		pushed++
		return nil
	})
	if err != nil {
		l.logger.Error("Load aborted, queue is partially loaded",
			zap.Int64("pushed", pushed),
			zap.Error(err),
		)
		return pushed, err
	}

	l.logger.Info("Queue loaded", zap.String("snapshot", path), zap.Int64("pushed", pushed))
	return pushed, nil
}
