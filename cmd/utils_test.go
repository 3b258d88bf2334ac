package cmd

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupLoggingTeesToStderrAndFile(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	orig := os.Stderr
	os.Stderr = w
	defer func() { os.Stderr = orig }()

	logDir := filepath.Join(t.TempDir(), "logs")
	file, err := SetupLogging(logDir, "test.log")
	require.NoError(t, err)
	defer file.Close()

	slog.Info("collector started")

	require.NoError(t, w.Close())
	scanner := bufio.NewScanner(r)
	require.True(t, scanner.Scan(), "nothing written to stderr")
	assert.Contains(t, scanner.Text(), "collector started")

	content, err := os.ReadFile(filepath.Join(logDir, "test.log"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "collector started")
}
