package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/harun/doctrack/internal/config"
	"github.com/harun/doctrack/pkg/progress"
	"github.com/stretchr/testify/assert"
)

func plainDisplay() config.DisplayConfig {
	return config.DisplayConfig{Width: 10, Fill: "#", Empty: "-", ShowBar: true, Color: false}
}

func TestConsoleRenderer_Render(t *testing.T) {
	out := &bytes.Buffer{}
	r := newConsoleRenderer(out, plainDisplay())

	r.Render(progress.Record{
		Name:    "docs/api",
		Parent:  "docs",
		Status:  progress.StatusCompleted,
		Current: 5,
		Total:   10,
		Message: "rendered",
	})
	assert.Equal(t, "  [done] docs/api: rendered [#####-----]  50.0%\n", out.String())

	out.Reset()
	r.Render(progress.Record{Name: "lint", Status: progress.StatusRunning, Elapsed: 2 * time.Second})
	assert.Equal(t, "[....] lint:  (Elapsed: 2.0s)\n", out.String())
}

func TestConsoleRenderer_Callback(t *testing.T) {
	out := &bytes.Buffer{}
	r := newConsoleRenderer(out, plainDisplay())

	reg := progress.NewRegistry()
	reg.AddCallback(r.Callback)

	_, err := reg.Start("job", progress.StartOptions{Total: 2, Message: "go"})
	assert.NoError(t, err)
	one := 1
	_, err = reg.Update("job", progress.Update{Current: &one})
	assert.NoError(t, err)
	_, err = reg.Complete("job", progress.StatusFailed, nil)
	assert.NoError(t, err)

	lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
	assert.Len(t, lines, 2, "progress updates are not rendered")
	assert.Contains(t, string(lines[0]), "[....] job: go")
	assert.Equal(t, "[fail] job: go [#####-----]  50.0%", string(lines[1]))
}

func TestConsoleRenderer_Summary(t *testing.T) {
	out := &bytes.Buffer{}
	r := newConsoleRenderer(out, plainDisplay())

	r.RenderSummary(progress.Summary{
		TotalOperations:           4,
		RunningOperations:         1,
		CompletedOperations:       2,
		FailedOperations:          1,
		OverallProgressPercentage: 51.428,
		TotalItems:                175,
	})
	assert.Equal(t, "4 operations: 2 completed, 1 failed, 0 cancelled, 1 running (51.4% of 175 items)\n", out.String())
}

func TestConsoleRenderer_Tags(t *testing.T) {
	r := newConsoleRenderer(&bytes.Buffer{}, plainDisplay())

	assert.Equal(t, "[done]", r.tag(progress.StatusCompleted))
	assert.Equal(t, "[fail]", r.tag(progress.StatusFailed))
	assert.Equal(t, "[stop]", r.tag(progress.StatusCancelled))
	assert.Equal(t, "[....]", r.tag(progress.StatusRunning))
}
