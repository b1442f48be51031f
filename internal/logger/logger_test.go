package logger

import (
	"os"
	"path/filepath"
	"testing"

	"chatdesk-backend/internal/env"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupWritesToRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "chatdesk.log")

	closer, err := Setup(env.LoggingConfig{Level: "debug", Format: "json", File: path})
	require.NoError(t, err)
	t.Cleanup(func() { _ = closer.Close() })

	log.Info().Str("component", "test").Msg("hello")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"test"`)
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}

func TestSetupFallsBackToInfoLevel(t *testing.T) {
	closer, err := Setup(env.LoggingConfig{Level: "loud"})
	require.NoError(t, err)
	require.NoError(t, closer.Close())

	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
