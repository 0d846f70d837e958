package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestSetupWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	closer, err := Setup(LogConfig{Level: "debug", Format: "json", Output: path})
	require.NoError(t, err)

	l := WithComponent("numbering")
	l.Info().Str("counter_id", "u1_invoice_2024").Msg("allocated")
	require.NoError(t, closer())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	line := string(raw)
	require.True(t, strings.Contains(line, `"component":"numbering"`), line)
	require.True(t, strings.Contains(line, `"counter_id":"u1_invoice_2024"`), line)
	require.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	t.Cleanup(func() {
		_, _ = Setup(DefaultConfig())
	})
}

func TestSetupRejectsUnknownLevel(t *testing.T) {
	_, err := Setup(LogConfig{Level: "loud", Output: "stderr"})
	require.Error(t, err)
}
