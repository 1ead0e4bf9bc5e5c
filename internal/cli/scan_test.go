package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/harun/doctrack/internal/config"
	"github.com/harun/doctrack/pkg/progress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTestConfig saves a config with colors disabled and returns its path
func writeTestConfig(t *testing.T, mutate func(cfg *config.Config)) string {
	t.Helper()

	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Display.Color = false
	cfg.Logging.Pretty = false
	cfg.Logging.Level = "error"
	cfg.DataDir = dir
	cfg.History.DBPath = filepath.Join(dir, "history.db")
	if mutate != nil {
		mutate(cfg)
	}

	path := filepath.Join(dir, "doctrack.json")
	require.NoError(t, config.NewLoader(path).Save(cfg))
	return path
}

func createDocsTree(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "api"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "api", "index.md"), []byte("abc"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("hi"), 0644))
	return root
}

func TestScanCommand(t *testing.T) {
	root := createDocsTree(t)
	cfgPath := writeTestConfig(t, nil)

	output, _, err := execute(t, "scan", root, "--config", cfgPath)
	require.NoError(t, err)

	assert.Contains(t, output, "[....] scan "+filepath.Clean(root))
	assert.Contains(t, output, "[done] scan "+filepath.Clean(root)+": Scanned 2 files in 1 directories")
	assert.Contains(t, output, "  [done] scan "+filepath.Clean(root)+"/api")
	assert.Contains(t, output, "3 operations: 3 completed, 0 failed, 0 cancelled, 0 running")
	assert.Contains(t, output, "Scanned 2 files (5 bytes) in 1 directories of "+filepath.Clean(root))
}

func TestScanCommand_JSON(t *testing.T) {
	root := createDocsTree(t)
	cfgPath := writeTestConfig(t, nil)

	output, _, err := execute(t, "scan", root, "--config", cfgPath, "--json")
	require.NoError(t, err)

	var decoded scanOutput
	require.NoError(t, json.Unmarshal([]byte(output), &decoded))

	assert.Equal(t, 2, decoded.Result.Files)
	assert.Equal(t, int64(5), decoded.Result.Bytes)
	assert.Equal(t, 3, decoded.Summary.CompletedOperations)
	assert.Empty(t, decoded.Error)

	require.NotNil(t, decoded.Tree)
	assert.Equal(t, progress.StatusCompleted, decoded.Tree.Status)
	assert.Len(t, decoded.Tree.Children, 2)
}

func TestScanCommand_Errors(t *testing.T) {
	cfgPath := writeTestConfig(t, nil)

	t.Run("missing directory", func(t *testing.T) {
		_, _, err := execute(t, "scan", filepath.Join(t.TempDir(), "missing"), "--config", cfgPath)
		assert.Error(t, err)
	})

	t.Run("requires one argument", func(t *testing.T) {
		_, _, err := execute(t, "scan", "--config", cfgPath)
		assert.Error(t, err)
	})

	t.Run("invalid metrics address", func(t *testing.T) {
		_, _, err := execute(t, "scan", t.TempDir(), "--config", cfgPath, "--metrics-addr", "nowhere")
		assert.Error(t, err)
	})
}

func TestScanCommand_RecordsHistory(t *testing.T) {
	root := createDocsTree(t)
	cfgPath := writeTestConfig(t, func(cfg *config.Config) {
		cfg.History.Enabled = true
	})

	_, _, err := execute(t, "scan", root, "--config", cfgPath)
	require.NoError(t, err)

	output, _, err := execute(t, "history", "--config", cfgPath, "--json")
	require.NoError(t, err)

	var entries []struct {
		ID     int64           `json:"id"`
		Record progress.Record `json:"record"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &entries))
	require.Len(t, entries, 3)
	assert.Equal(t, "scan "+filepath.Clean(root), entries[0].Record.Name, "the root finishes last")
	assert.Equal(t, progress.StatusCompleted, entries[0].Record.Status)

	output, _, err = execute(t, "history", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, output, "[done] scan "+filepath.Clean(root))

	output, _, err = execute(t, "history", "--config", cfgPath, "--status", "failed")
	require.NoError(t, err)
	assert.Contains(t, output, "No matching operations")
}
