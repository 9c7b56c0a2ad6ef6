package progress

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestTracker(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	tr := newTracker(clock.now)

	clock.advance(time.Second)
	tr.AddMigrated(1000)
	clock.advance(time.Second)
	tr.AddMigrated(3000)
	tr.AddRequeued()
	tr.SetRemaining(4)

	s := tr.GetStatus()
	assert.Equal(t, int64(2), s.Migrated)
	assert.Equal(t, int64(1), s.Requeued)
	assert.Equal(t, int64(4000), s.Bytes)
	assert.Equal(t, int64(4), s.Remaining)
	assert.InDelta(t, 2000.0, s.AverageSpeed, 0.001)
	assert.InDelta(t, 4000.0, s.CurrentSpeed, 0.001)
	// two objects in two seconds, four left
	assert.Equal(t, 4*time.Second, s.ETA)
}

func TestLine(t *testing.T) {
	line := Line(Status{Migrated: 1200, Bytes: 5_000_000, Requeued: 3, Remaining: -1})
	assert.Contains(t, line, "migrated 1,200 (5.0 MB)")
	assert.Contains(t, line, "requeued 3")
	assert.Contains(t, line, "queued ?")
	assert.NotContains(t, line, "eta")

	line = Line(Status{Remaining: 10, ETA: 90 * time.Second})
	assert.Contains(t, line, "queued 10")
	assert.Contains(t, line, "eta 1m30s")
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "5s", FormatDuration(5*time.Second))
	assert.Equal(t, "2m3s", FormatDuration(123*time.Second))
	assert.Equal(t, "1h0m1s", FormatDuration(time.Hour+time.Second))
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestDisplayStopPrintsSummary(t *testing.T) {
	tr := NewTracker()
	tr.AddMigrated(10)

	var out syncBuffer
	d := NewDisplay(tr, time.Hour, &out)
	d.Start()
	d.Stop()
	d.Stop()

	require.Contains(t, out.String(), "migrated 1 (10 B)")
	assert.Contains(t, out.String(), "finished in")
}
