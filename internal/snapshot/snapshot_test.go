package snapshot

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAll(t *testing.T, path string, ids ...string) {
	t.Helper()
	w, err := Create(path)
	require.NoError(t, err)
	for _, id := range ids {
		require.NoError(t, w.Add(id))
	}
	require.NoError(t, w.Close())
}

func readAll(t *testing.T, path string) []string {
	t.Helper()
	var got []string
	require.NoError(t, Read(path, func(id string) error {
		got = append(got, id)
		return nil
	}))
	return got
}

func TestWriter(t *testing.T) {
	t.Run("one_line_per_identifier", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ids.txt")
		writeAll(t, path, "a/1.jpg", "a/2.jpg", "b.png")

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "a/1.jpg\na/2.jpg\nb.png\n", string(data))
	})

	t.Run("overwrites_previous_snapshot", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ids.txt")
		require.NoError(t, os.WriteFile(path, []byte("stale-1\nstale-2\nstale-3\n"), 0o644))

		writeAll(t, path, "fresh")
		assert.Equal(t, []string{"fresh"}, readAll(t, path))
	})

	t.Run("counts_lines", func(t *testing.T) {
		w, err := Create(filepath.Join(t.TempDir(), "ids.txt"))
		require.NoError(t, err)
		require.NoError(t, w.Add("x"))
		require.NoError(t, w.Add("y"))
		assert.Equal(t, int64(2), w.Count())
		require.NoError(t, w.Close())
	})

	t.Run("rejects_line_breaks", func(t *testing.T) {
		w, err := Create(filepath.Join(t.TempDir(), "ids.txt"))
		require.NoError(t, err)
		defer w.Close()
		assert.Error(t, w.Add("bad\nid"))
	})
}

func TestRead(t *testing.T) {
	t.Run("trims_and_skips_blank_lines", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ids.txt")
		require.NoError(t, os.WriteFile(path, []byte("a\r\n  b \n\nc\n\n"), 0o644))
		assert.Equal(t, []string{"a", "b", "c"}, readAll(t, path))
	})

	t.Run("stops_on_callback_error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ids.txt")
		writeAll(t, path, "a", "b", "c")

		boom := errors.New("boom")
		var seen []string
		err := Read(path, func(id string) error {
			seen = append(seen, id)
			if id == "b" {
				return boom
			}
			return nil
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, []string{"a", "b"}, seen)
	})

	t.Run("missing_file", func(t *testing.T) {
		err := Read(filepath.Join(t.TempDir(), "nope.txt"), func(string) error { return nil })
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to open snapshot")
	})
}
