package progress

import (
	"sync"
	"time"
)

// Status represents the current migration status
type Status struct {
	Migrated       int64
	Requeued       int64
	Bytes          int64
	Remaining      int64 // queue length at the last observation, -1 if unknown
	StartTime      time.Time
	LastUpdateTime time.Time
	CurrentSpeed   float64 // bytes/second over the recent window
	AverageSpeed   float64 // bytes/second since start
	ETA            time.Duration
}

// Tracker tracks migration progress
type Tracker struct {
	mu           sync.RWMutex
	status       Status
	speedSamples []speedSample
	maxSamples   int
	window       time.Duration
	now          func() time.Time
}

type speedSample struct {
	timestamp time.Time
	bytes     int64
}

// NewTracker creates a new progress tracker
func NewTracker() *Tracker {
	return newTracker(time.Now)
}

func newTracker(now func() time.Time) *Tracker {
	start := now()
	return &Tracker{
		status: Status{
			Remaining:      -1,
			StartTime:      start,
			LastUpdateTime: start,
		},
		speedSamples: make([]speedSample, 0, 60),
		maxSamples:   60,
		window:       5 * time.Second,
		now:          now,
	}
}

// AddMigrated records one object written to the destination
func (t *Tracker) AddMigrated(bytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.Migrated++
	t.status.Bytes += bytes
	t.updateSpeed(bytes)
}

// AddRequeued records one failed attempt pushed back onto the queue
func (t *Tracker) AddRequeued() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.Requeued++
	t.status.LastUpdateTime = t.now()
}

// SetRemaining records the latest queue length
func (t *Tracker) SetRemaining(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.Remaining = n
	t.calculateETA()
}

// updateSpeed must be called with lock held
func (t *Tracker) updateSpeed(bytes int64) {
	now := t.now()

	t.speedSamples = append(t.speedSamples, speedSample{timestamp: now, bytes: bytes})
	if len(t.speedSamples) > t.maxSamples {
		t.speedSamples = t.speedSamples[1:]
	}

	t.calculateCurrentSpeed(now)

	if elapsed := now.Sub(t.status.StartTime); elapsed > 0 {
		t.status.AverageSpeed = float64(t.status.Bytes) / elapsed.Seconds()
	}

	t.calculateETA()
	t.status.LastUpdateTime = now
}

func (t *Tracker) calculateCurrentSpeed(now time.Time) {
	if len(t.speedSamples) < 2 {
		t.status.CurrentSpeed = 0
		return
	}

	cutoff := now.Add(-t.window)
	var recentBytes int64
	var first *speedSample

	for i := len(t.speedSamples) - 1; i >= 0; i-- {
		sample := &t.speedSamples[i]
		if sample.timestamp.Before(cutoff) {
			break
		}
		recentBytes += sample.bytes
		first = sample
	}

	t.status.CurrentSpeed = 0
	if first != nil {
		if d := now.Sub(first.timestamp); d > 0 {
			t.status.CurrentSpeed = float64(recentBytes) / d.Seconds()
		}
	}
}

// calculateETA estimates from object throughput, since object sizes in the
// queue are unknown.
func (t *Tracker) calculateETA() {
	t.status.ETA = 0
	if t.status.Remaining <= 0 || t.status.Migrated == 0 {
		return
	}

	elapsed := t.status.LastUpdateTime.Sub(t.status.StartTime)
	if elapsed <= 0 {
		return
	}
	perObject := elapsed / time.Duration(t.status.Migrated)
	t.status.ETA = perObject * time.Duration(t.status.Remaining)
}

// GetStatus returns the current status
func (t *Tracker) GetStatus() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.status
}
