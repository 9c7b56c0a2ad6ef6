package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("rejects_unknown_level", func(t *testing.T) {
		_, err := New("loud", "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})

	t.Run("appends_to_file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "migrate.log")
		require.NoError(t, os.WriteFile(path, []byte("previous run\n"), 0o644))

		log, err := New("info", path)
		require.NoError(t, err)
		log.Info("worker started")
		_ = log.Sync()

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "previous run\n")
		assert.Contains(t, string(data), "worker started")
	})
}
