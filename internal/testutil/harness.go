// Package testutil provides the integration-test harness: it writes model
// definition files into a temporary directory, drives the app end to end, and
// captures everything it printed and logged.
package testutil

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/briantomko/OpenMDAO/internal/app"
)

// SafeBuffer is a thread-safe buffer for capturing output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// HarnessResult holds the outcome of one end-to-end run.
type HarnessResult struct {
	Output    string
	LogOutput string
	Err       error
}

// RunModel writes the given model files into a temp dir and runs the app over
// them with the provided config overrides. A zero config runs with debug text
// logging and no derivative query.
func RunModel(t *testing.T, files map[string]string, cfg app.Config) *HarnessResult {
	t.Helper()

	tmpDir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(tmpDir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}

	cfg.ModelPath = tmpDir
	if cfg.LogLevel == "" {
		cfg.LogLevel = "debug"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	validated, err := app.NewConfig(cfg)
	require.NoError(t, err)

	out := &SafeBuffer{}
	logs := &SafeBuffer{}
	runErr := app.NewApp(out, logs, validated).Run(context.Background())

	return &HarnessResult{
		Output:    out.String(),
		LogOutput: logs.String(),
		Err:       runErr,
	}
}
