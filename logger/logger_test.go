package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	l, c, err := New(Config{})
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, zerolog.InfoLevel, l.GetLevel())
}

func TestNew_InvalidInput(t *testing.T) {
	_, _, err := New(Config{Level: "loud"})
	assert.Error(t, err)

	_, _, err = New(Config{Format: "xml"})
	assert.Error(t, err)
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.log")

	l, c, err := New(Config{Level: "debug", Output: path})
	require.NoError(t, err)
	l.Debug().Str("message_type", "SendEmail").Msg("hello")
	require.NoError(t, c.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"message_type":"SendEmail"`)
	assert.Contains(t, string(b), `"level":"debug"`)
}

func TestNew_ConsoleFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.log")

	l, c, err := New(Config{Format: "console", Output: path})
	require.NoError(t, err)
	l.Info().Msg("started")
	require.NoError(t, c.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "started")
	assert.NotContains(t, string(b), `"message":`)
}
