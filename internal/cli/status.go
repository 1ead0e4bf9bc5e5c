package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/harun/doctrack/pkg/progress"
	"github.com/spf13/cobra"
)

var statusAddr string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status and running operations",
	Long: `Show whether a doctrack server is running and, when it is reachable,
the operations it is currently tracking.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "addr", "", "server address (default is the configured stream address)")
	statusCmd.Flags().StringVar(&pidFileFlag, "pid-file", "", "PID file path (default is $HOME/.doctrack/doctrack.pid)")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	pidFile := resolvePIDFile()

	if !isRunning(pidFile) {
		fmt.Fprintln(out, "Status: stopped")
		return nil
	}

	pid, err := readPID(pidFile)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "Status: running")
	fmt.Fprintf(out, "PID: %d\n", pid)
	if info, err := os.Stat(pidFile); err == nil {
		fmt.Fprintf(out, "Uptime: %s\n", formatDuration(time.Since(info.ModTime())))
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	addr := statusAddr
	if addr == "" {
		addr = cfg.Stream.Addr
	}

	resp, err := fetchOperations(addr)
	if err != nil {
		fmt.Fprintf(out, "Operations: unavailable (%v)\n", err)
		return nil
	}

	renderer := newConsoleRenderer(out, cfg.Display)
	renderer.RenderSummary(resp.Summary)
	for _, rec := range activeRecords(resp.Tree) {
		renderer.Render(rec)
	}
	return nil
}

func fetchOperations(addr string) (*operationsResponse, error) {
	client := &http.Client{Timeout: 5 * time.Second}

	res, err := client.Get("http://" + addr + "/operations")
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, fmt.Errorf("unexpected status %d: %s", res.StatusCode, body)
	}

	var resp operationsResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode operations: %w", err)
	}
	return &resp, nil
}

// activeRecords flattens the running records of a tree in name order
func activeRecords(root *progress.TreeNode) []progress.Record {
	var out []progress.Record
	var walk func(n *progress.TreeNode)
	walk = func(n *progress.TreeNode) {
		if n.IsRunning() {
			out = append(out, n.Record)
		}
		for _, child := range n.Children {
			walk(child)
		}
	}
	if root != nil {
		walk(root)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
