package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/harun/doctrack/internal/config"
	"github.com/harun/doctrack/pkg/progress"
)

// consoleRenderer prints one line per operation start and finish. It runs as
// a registry callback, so it only formats the snapshot it is handed.
type consoleRenderer struct {
	out       io.Writer
	formatter progress.Formatter
	showBar   bool

	ok      *color.Color
	fail    *color.Color
	cancel  *color.Color
	running *color.Color

	mu sync.Mutex
}

func newConsoleRenderer(out io.Writer, d config.DisplayConfig) *consoleRenderer {
	r := &consoleRenderer{
		out:       out,
		formatter: progress.Formatter{Width: d.Width, Fill: d.Fill, Empty: d.Empty},
		showBar:   d.ShowBar,
		ok:        color.New(color.FgGreen),
		fail:      color.New(color.FgRed),
		cancel:    color.New(color.FgYellow),
		running:   color.New(color.FgCyan),
	}
	if !d.Color {
		for _, c := range []*color.Color{r.ok, r.fail, r.cancel, r.running} {
			c.DisableColor()
		}
	}
	return r
}

// Callback renders start and terminal transitions
func (r *consoleRenderer) Callback(_ string, rec progress.Record) {
	if rec.IsRunning() && rec.Current > 0 {
		return
	}
	r.Render(rec)
}

// Render prints one status line for rec, indented by nesting depth
func (r *consoleRenderer) Render(rec progress.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()

	indent := strings.Repeat("  ", depth(rec))
	fmt.Fprintf(r.out, "%s%s %s\n", indent, r.tag(rec.Status), r.formatter.OperationStatus(rec, r.showBar))
}

func (r *consoleRenderer) tag(s progress.Status) string {
	switch s {
	case progress.StatusCompleted:
		return r.ok.Sprint("[done]")
	case progress.StatusFailed:
		return r.fail.Sprint("[fail]")
	case progress.StatusCancelled:
		return r.cancel.Sprint("[stop]")
	default:
		return r.running.Sprint("[....]")
	}
}

// depth is 1 for any nested record
func depth(rec progress.Record) int {
	if rec.Parent == "" {
		return 0
	}
	return 1
}

// RenderSummary prints the aggregate line shown at the end of a command
func (r *consoleRenderer) RenderSummary(s progress.Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprintf(r.out, "%d operations: %s, %s, %s, %d running (%.1f%% of %d items)\n",
		s.TotalOperations,
		r.ok.Sprintf("%d completed", s.CompletedOperations),
		r.fail.Sprintf("%d failed", s.FailedOperations),
		r.cancel.Sprintf("%d cancelled", s.CancelledOperations),
		s.RunningOperations,
		s.OverallProgressPercentage,
		s.TotalItems,
	)
}

// operationsResponse is served at /operations
type operationsResponse struct {
	Summary progress.Summary   `json:"summary"`
	Tree    *progress.TreeNode `json:"tree"`
}

func operationsHandler(reg *progress.Registry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := operationsResponse{
			Summary: reg.Summary(),
			Tree:    reg.Tree(r.URL.Query().Get("root")),
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}
