package cli

import (
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/harun/doctrack/pkg/progress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCommand(t *testing.T) {
	t.Run("stopped", func(t *testing.T) {
		output, _, err := execute(t, "status", "--pid-file", filepath.Join(t.TempDir(), "doctrack.pid"))
		require.NoError(t, err)
		assert.Contains(t, output, "Status: stopped")
	})

	t.Run("running with operations", func(t *testing.T) {
		reg := progress.NewRegistry()
		_, err := reg.Start("build", progress.StartOptions{Total: 4, Message: "rendering"})
		require.NoError(t, err)
		_, err = reg.Start("build/api", progress.StartOptions{Parent: "build", Message: "api pages"})
		require.NoError(t, err)
		_, err = reg.Start("lint", progress.StartOptions{})
		require.NoError(t, err)
		_, err = reg.Complete("lint", progress.StatusCompleted, nil)
		require.NoError(t, err)

		srv := httptest.NewServer(operationsHandler(reg))
		defer srv.Close()

		pidFile := filepath.Join(t.TempDir(), "doctrack.pid")
		require.NoError(t, os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())), 0644))

		output, _, err := execute(t, "status",
			"--pid-file", pidFile,
			"--addr", strings.TrimPrefix(srv.URL, "http://"),
			"--config", writeTestConfig(t, nil),
		)
		require.NoError(t, err)

		assert.Contains(t, output, "Status: running")
		assert.Contains(t, output, "PID: "+strconv.Itoa(os.Getpid()))
		assert.Contains(t, output, "3 operations: 1 completed")
		assert.Contains(t, output, "[....] build: rendering")
		assert.Contains(t, output, "  [....] build/api: api pages")
		assert.NotContains(t, output, "lint:")
	})

	t.Run("server unreachable", func(t *testing.T) {
		pidFile := filepath.Join(t.TempDir(), "doctrack.pid")
		require.NoError(t, os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())), 0644))

		output, _, err := execute(t, "status",
			"--pid-file", pidFile,
			"--addr", "127.0.0.1:1",
			"--config", writeTestConfig(t, nil),
		)
		require.NoError(t, err)
		assert.Contains(t, output, "Operations: unavailable")
	})
}

func TestOperationsHandler(t *testing.T) {
	reg := progress.NewRegistry()
	_, err := reg.Start("docs", progress.StartOptions{Total: 2})
	require.NoError(t, err)
	_, err = reg.Start("docs/api", progress.StartOptions{Parent: "docs"})
	require.NoError(t, err)

	srv := httptest.NewServer(operationsHandler(reg))
	defer srv.Close()

	t.Run("full tree", func(t *testing.T) {
		resp, err := fetchOperations(strings.TrimPrefix(srv.URL, "http://"))
		require.NoError(t, err)

		assert.Equal(t, 2, resp.Summary.TotalOperations)
		assert.Equal(t, 2, resp.Summary.RunningOperations)
		require.Contains(t, resp.Tree.Children, "docs")
		assert.Contains(t, resp.Tree.Children["docs"].Children, "docs/api")
	})

	t.Run("rooted tree", func(t *testing.T) {
		res, err := srv.Client().Get(srv.URL + "?root=docs/api")
		require.NoError(t, err)
		defer res.Body.Close()

		assert.Equal(t, "application/json", res.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
		tree := body["tree"].(map[string]any)
		assert.Equal(t, "docs/api", tree["name"])
		assert.Equal(t, "docs", tree["parent"])
	})
}

func TestActiveRecords(t *testing.T) {
	tree := &progress.TreeNode{
		Children: map[string]*progress.TreeNode{
			"b": {Record: progress.Record{Name: "b", Status: progress.StatusRunning}},
			"a": {
				Record: progress.Record{Name: "a", Status: progress.StatusCompleted},
				Children: map[string]*progress.TreeNode{
					"a/1": {Record: progress.Record{Name: "a/1", Status: progress.StatusRunning}},
				},
			},
		},
	}

	var names []string
	for _, rec := range activeRecords(tree) {
		names = append(names, rec.Name)
	}
	assert.Equal(t, []string{"a/1", "b"}, names)
	assert.Empty(t, activeRecords(nil))
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		expected string
	}{
		{"seconds only", 45 * time.Second, "45s"},
		{"minutes and seconds", 2*time.Minute + 30*time.Second, "2m30s"},
		{"hours minutes seconds", 3*time.Hour + 15*time.Minute + 20*time.Second, "3h15m20s"},
		{"zero", 0, "0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := formatDuration(tt.duration)
			assert.Equal(t, tt.expected, result)
		})
	}
}
