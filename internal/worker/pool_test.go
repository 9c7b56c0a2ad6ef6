package worker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"queuemigrate/internal/metrics"
	"queuemigrate/internal/testsupport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	srcBucket = "images"
	dstBucket = "images-s3"
)

func testConfig() Config {
	return Config{
		SourceBucket: srcBucket,
		TargetBucket: dstBucket,
		AccessKey:    "AKIA",
		SecretKey:    "secret",
	}
}

func seeded(keys ...string) *testsupport.Store {
	store := testsupport.NewStore()
	for _, k := range keys {
		store.Seed(srcBucket, k, "image/jpeg", []byte("data-"+k))
	}
	return store
}

func newPool(t *testing.T, size int, cfg Config, q *testsupport.Queue, store *testsupport.Store) *Pool {
	return NewPool(size, cfg, q, store, store, metrics.New(), zaptest.NewLogger(t))
}

func queueLen(t *testing.T, q *testsupport.Queue) int64 {
	n, err := q.Len(context.Background())
	require.NoError(t, err)
	return n
}

func TestPoolRetriesFailedItemUntilItSucceeds(t *testing.T) {
	store := seeded("A", "B", "C")
	store.FailPut("B", 1)
	q := testsupport.NewQueue("A", "B", "C")

	summary, err := newPool(t, 2, testConfig(), q, store).Run(context.Background(), &StopSignal{})
	require.NoError(t, err)

	assert.Zero(t, queueLen(t, q))
	assert.Equal(t, []string{"A", "B", "C"}, store.Keys(dstBucket))
	for _, k := range []string{"A", "B", "C"} {
		assert.Equal(t, 1, store.SuccessfulPuts(k), "key %s", k)
	}
	assert.Equal(t, 2, summary.Count(StateDone))
	assert.Equal(t, int64(3), summary.Migrated)
	assert.Equal(t, int64(1), summary.Requeued)

	data, contentType, ok := store.Object(dstBucket, "B")
	require.True(t, ok)
	assert.Equal(t, "data-B", string(data))
	assert.Equal(t, "image/jpeg", contentType)
}

func TestPoolFailedItemIsRequeuedExactlyOnce(t *testing.T) {
	store := seeded("X", "Y")
	store.FailGet("X", 1)
	q := testsupport.NewQueue("X", "Y")

	var (
		mu   sync.Mutex
		pops []string
		seen [][]string
	)
	q.AfterPop = func(id string, ok bool) {
		mu.Lock()
		defer mu.Unlock()
		if ok {
			pops = append(pops, id)
			if id == "Y" {
				// X failed before this pop and must be queued once, behind Y
				seen = append(seen, q.Items())
			}
		}
	}

	_, err := newPool(t, 1, testConfig(), q, store).Run(context.Background(), &StopSignal{})
	require.NoError(t, err)

	assert.Equal(t, []string{"X", "Y", "X"}, pops)
	require.Len(t, seen, 1)
	assert.Equal(t, []string{"X"}, seen[0])
	assert.Equal(t, 1, store.SuccessfulPuts("X"))
}

func TestPoolDrainsQueue(t *testing.T) {
	var keys []string
	for i := 0; i < 100; i++ {
		keys = append(keys, fmt.Sprintf("img/%03d.jpg", i))
	}
	store := seeded(keys...)
	store.FailPut(keys[10], 2)
	store.FailGet(keys[50], 3)
	q := testsupport.NewQueue(keys...)

	summary, err := newPool(t, 4, testConfig(), q, store).Run(context.Background(), &StopSignal{})
	require.NoError(t, err)

	assert.Zero(t, queueLen(t, q))
	assert.Equal(t, 4, summary.Count(StateDone))
	assert.Len(t, summary.States, 4)
	assert.Equal(t, int64(100), summary.Migrated)
	assert.Equal(t, int64(5), summary.Requeued)
	assert.Equal(t, keys, store.Keys(dstBucket))
}

func TestPoolStopSignalSetBeforeStart(t *testing.T) {
	store := seeded("D", "E")
	q := testsupport.NewQueue("D", "E")

	stop := &StopSignal{}
	require.True(t, stop.Set())

	summary, err := newPool(t, 3, testConfig(), q, store).Run(context.Background(), stop)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Count(StateStopped))
	assert.Equal(t, int64(2), queueLen(t, q))
	assert.Zero(t, store.Calls())
	assert.Empty(t, store.Keys(dstBucket))
}

func TestPoolInterruptLetsInFlightTransferFinish(t *testing.T) {
	var keys []string
	for i := 0; i < 50; i++ {
		keys = append(keys, fmt.Sprintf("k%02d", i))
	}
	store := seeded(keys...)
	q := testsupport.NewQueue(keys...)
	stop := &StopSignal{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store.BeforePut = func(string) {
		cancel()
		for !stop.IsSet() {
			time.Sleep(time.Millisecond)
		}
	}

	summary, err := newPool(t, 2, testConfig(), q, store).Run(ctx, stop)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Count(StateStopped))
	migrated := int64(len(store.Keys(dstBucket)))
	assert.Equal(t, summary.Migrated, migrated)
	assert.LessOrEqual(t, migrated, int64(2))
	// nothing consumed is lost
	assert.Equal(t, int64(len(keys)), migrated+queueLen(t, q))
}

func TestPoolMissingCredentials(t *testing.T) {
	tests := []struct {
		name   string
		access string
		secret string
	}{
		{name: "both_missing"},
		{name: "secret_missing", access: "AKIA"},
		{name: "access_missing", secret: "secret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := seeded("A")
			q := testsupport.NewQueue("A")
			cfg := testConfig()
			cfg.AccessKey, cfg.SecretKey = tt.access, tt.secret

			summary, err := newPool(t, 4, cfg, q, store).Run(context.Background(), &StopSignal{})
			require.ErrorIs(t, err, ErrMissingCredentials)

			assert.Empty(t, summary.States)
			assert.Zero(t, store.Calls())
			assert.Zero(t, q.Calls())
		})
	}
}

// A worker that loses the race for the last item exits DONE even though the
// winner may still requeue it; the winner keeps going and finishes it.
func TestPoolLosingWorkerExitsWhileWinnerRetries(t *testing.T) {
	store := seeded("X")
	store.FailPut("X", 1)
	q := testsupport.NewQueue("X")

	emptySeen := make(chan struct{})
	var once sync.Once
	q.AfterPop = func(_ string, ok bool) {
		if !ok {
			once.Do(func() { close(emptySeen) })
		}
	}
	store.BeforePut = func(string) { <-emptySeen }

	summary, err := newPool(t, 2, testConfig(), q, store).Run(context.Background(), &StopSignal{})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Count(StateDone))
	assert.Equal(t, int64(1), summary.Requeued)
	assert.Equal(t, 1, store.SuccessfulPuts("X"))
	assert.Zero(t, queueLen(t, q))
}

func TestPoolQueueFailures(t *testing.T) {
	t.Run("pop_failure_fails_workers", func(t *testing.T) {
		store := seeded("A")
		q := testsupport.NewQueue("A")
		q.FailPop()

		summary, err := newPool(t, 2, testConfig(), q, store).Run(context.Background(), &StopSignal{})
		require.ErrorIs(t, err, testsupport.ErrQueueDown)
		assert.Equal(t, 2, summary.Count(StateFailed))
	})

	t.Run("requeue_failure_is_reported", func(t *testing.T) {
		store := seeded("A")
		store.FailGet("A", 1)
		q := testsupport.NewQueue("A")
		q.FailPush()

		summary, err := newPool(t, 1, testConfig(), q, store).Run(context.Background(), &StopSignal{})
		require.ErrorIs(t, err, testsupport.ErrQueueDown)
		assert.Contains(t, err.Error(), "requeue A")
		assert.Equal(t, 1, summary.Count(StateFailed))
	})
}

func TestStopSignal(t *testing.T) {
	var s StopSignal
	assert.False(t, s.IsSet())
	assert.True(t, s.Set())
	assert.False(t, s.Set())
	assert.True(t, s.IsSet())
}
