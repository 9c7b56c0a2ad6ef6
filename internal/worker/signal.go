package worker

import (
	"errors"
	"sync/atomic"
	"time"
)

// ErrMissingCredentials is returned by Pool.Run when the destination
// credentials are absent. No worker is started.
var ErrMissingCredentials = errors.New("destination credentials are required")

// StopSignal is a one-shot flag shared by every worker of a run. Once set it
// stays set.
type StopSignal struct {
	set atomic.Bool
}

// Set raises the signal. It reports whether this call was the one that set it.
func (s *StopSignal) Set() bool {
	return s.set.CompareAndSwap(false, true)
}

// IsSet reports whether the signal has been raised
func (s *StopSignal) IsSet() bool {
	return s.set.Load()
}

// State is the terminal state of a worker
type State string

const (
	// StateDone means the worker found the queue empty
	StateDone State = "done"
	// StateStopped means the worker observed the stop signal
	StateStopped State = "stopped"
	// StateFailed means the queue itself failed under the worker
	StateFailed State = "failed"
)

// Config contains worker configuration
type Config struct {
	SourceBucket string
	TargetBucket string
	AccessKey    string
	SecretKey    string
	// RetryDelay is slept after a requeue. Zero retries immediately.
	RetryDelay time.Duration
	// StatusInterval is how often Run reports progress while it waits
	StatusInterval time.Duration
}

// Summary describes a finished run
type Summary struct {
	States   []State
	Migrated int64
	Requeued int64
}

// Count returns how many workers ended in state
func (s Summary) Count(state State) int {
	n := 0
	for _, st := range s.States {
		if st == state {
			n++
		}
	}
	return n
}
