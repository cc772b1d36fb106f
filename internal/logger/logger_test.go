package logger

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoggerToFile(t *testing.T) {
	tempFile, err := os.CreateTemp(os.TempDir(), "rendezvous-logger-")
	require.NoError(t, err)
	defer os.Remove(tempFile.Name())
	defer tempFile.Close()

	l, err := New(Debug, map[Destination]struct{}{
		DestinationFile: {},
	}, tempFile.Name())
	require.NoError(t, err)
	defer l.Close()

	l.Log(Info, "test format %d", 123)

	buf, err := os.ReadFile(tempFile.Name())
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(string(buf), "INF test format 123\n"))
}

func TestLoggerLevelFilter(t *testing.T) {
	tempFile, err := os.CreateTemp(os.TempDir(), "rendezvous-logger-")
	require.NoError(t, err)
	defer os.Remove(tempFile.Name())
	defer tempFile.Close()

	l, err := New(Warn, map[Destination]struct{}{
		DestinationFile: {},
	}, tempFile.Name())
	require.NoError(t, err)
	defer l.Close()

	l.Log(Debug, "hidden")
	l.Log(Error, "visible")

	buf, err := os.ReadFile(tempFile.Name())
	require.NoError(t, err)
	require.NotContains(t, string(buf), "hidden")
	require.Contains(t, string(buf), "visible")
}
