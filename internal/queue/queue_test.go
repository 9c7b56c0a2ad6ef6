package queue

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]func(t *testing.T) Queue {
	return map[string]func(t *testing.T) Queue{
		"redis": func(t *testing.T) Queue {
			srv := miniredis.RunT(t)
			q, err := NewRedis(context.Background(), RedisOptions{Addr: srv.Addr(), DB: 1, Key: "ids"})
			require.NoError(t, err)
			t.Cleanup(func() { q.Close() })
			return q
		},
		"sqlite": func(t *testing.T) Queue {
			q, err := NewSQLite(filepath.Join(t.TempDir(), "queue.db"), "ids")
			require.NoError(t, err)
			t.Cleanup(func() { q.Close() })
			return q
		},
	}
}

func TestQueue(t *testing.T) {
	ctx := context.Background()

	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("pop_on_empty_reports_absent", func(t *testing.T) {
				q := open(t)
				id, ok, err := q.Pop(ctx)
				require.NoError(t, err)
				assert.False(t, ok)
				assert.Empty(t, id)
			})

			t.Run("fifo_order", func(t *testing.T) {
				q := open(t)
				for _, id := range []string{"a", "b", "c"} {
					require.NoError(t, q.Push(ctx, id))
				}

				n, err := q.Len(ctx)
				require.NoError(t, err)
				assert.Equal(t, int64(3), n)

				var got []string
				for {
					id, ok, err := q.Pop(ctx)
					require.NoError(t, err)
					if !ok {
						break
					}
					got = append(got, id)
				}
				assert.Equal(t, []string{"a", "b", "c"}, got)

				n, err = q.Len(ctx)
				require.NoError(t, err)
				assert.Zero(t, n)
			})

			t.Run("requeue_goes_to_tail", func(t *testing.T) {
				q := open(t)
				require.NoError(t, q.Push(ctx, "a"))
				require.NoError(t, q.Push(ctx, "b"))

				id, ok, err := q.Pop(ctx)
				require.NoError(t, err)
				require.True(t, ok)
				require.NoError(t, q.Push(ctx, id))

				first, _, err := q.Pop(ctx)
				require.NoError(t, err)
				second, _, err := q.Pop(ctx)
				require.NoError(t, err)
				assert.Equal(t, []string{"b", "a"}, []string{first, second})
			})

			t.Run("concurrent_pops_never_share_an_item", func(t *testing.T) {
				q := open(t)
				want := make([]string, 50)
				for i := range want {
					want[i] = fmt.Sprintf("obj-%02d", i)
					require.NoError(t, q.Push(ctx, want[i]))
				}

				var (
					mu  sync.Mutex
					got []string
					wg  sync.WaitGroup
				)
				for w := 0; w < 8; w++ {
					wg.Add(1)
					go func() {
						defer wg.Done()
						for {
							id, ok, err := q.Pop(ctx)
							if err != nil || !ok {
								return
							}
							mu.Lock()
							got = append(got, id)
							mu.Unlock()
						}
					}()
				}
				wg.Wait()

				sort.Strings(got)
				assert.Equal(t, want, got)
			})
		})
	}
}

func TestSQLiteQueuesAreIsolatedByName(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "queue.db")

	first, err := NewSQLite(path, "ids")
	require.NoError(t, err)
	defer first.Close()
	second, err := NewSQLite(path, "other")
	require.NoError(t, err)
	defer second.Close()

	require.NoError(t, first.Push(ctx, "a"))

	n, err := second.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, ok, err := second.Pop(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewRedisFailsWhenUnreachable(t *testing.T) {
	srv := miniredis.RunT(t)
	addr := srv.Addr()
	srv.Close()

	_, err := NewRedis(context.Background(), RedisOptions{Addr: addr, Key: "ids"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to redis")
}
