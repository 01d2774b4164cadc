package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDashboardLogger(t *testing.T) {
	t.Run("no log file", func(t *testing.T) {
		watchLogFile = ""
		log, closeLog, err := dashboardLogger()
		require.NoError(t, err)
		log.Info().Msg("dropped")
		assert.NoError(t, closeLog())
	})

	t.Run("log file is written and closed", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "watch.log")
		watchLogFile = path
		t.Cleanup(func() { watchLogFile = "" })

		log, closeLog, err := dashboardLogger()
		require.NoError(t, err)
		log.Info().Str("id", "f1").Msg("live connection up")

		require.NoError(t, closeLog())
		assert.ErrorIs(t, closeLog(), os.ErrClosed)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"message":"live connection up"`)
	})
}
