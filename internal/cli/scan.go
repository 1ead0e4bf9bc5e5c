package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/harun/doctrack/internal/config"
	"github.com/harun/doctrack/internal/scan"
	"github.com/harun/doctrack/pkg/progress"
	"github.com/spf13/cobra"
)

var (
	scanJSON        bool
	scanMetricsAddr string
)

var scanCmd = &cobra.Command{
	Use:   "scan <dir>",
	Short: "Scan a documentation tree with live progress",
	Long: `Scan a documentation tree and report per-directory progress.
Each top-level directory is tracked as a child operation of the scan.
Finished operations are recorded in the history store and streamed to
websocket clients when those are enabled in the configuration.`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "print the result and operation tree as JSON instead of progress lines")
	scanCmd.Flags().StringVar(&scanMetricsAddr, "metrics-addr", "", "expose prometheus metrics on this address while scanning")
	rootCmd.AddCommand(scanCmd)
}

// scanOutput is printed with --json
type scanOutput struct {
	Result  scan.Result        `json:"result"`
	Summary progress.Summary   `json:"summary"`
	Tree    *progress.TreeNode `json:"tree"`
	Error   string             `json:"error,omitempty"`
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if scanMetricsAddr != "" {
		if err := config.NewValidator().ValidateAddr(scanMetricsAddr); err != nil {
			return err
		}
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = scanMetricsAddr
	}

	a, err := newApp(cmd, cfg, appOptions{history: true, stream: true, metrics: true})
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	renderer := newConsoleRenderer(out, cfg.Display)
	if !scanJSON {
		a.reg.AddCallback(renderer.Callback)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dir := args[0]
	res, scanErr := scan.Dir(ctx, a.reg, dir)

	if scanJSON {
		output := scanOutput{
			Result:  res,
			Summary: a.reg.Summary(),
			Tree:    a.reg.Tree(scan.OperationName(dir)),
		}
		if scanErr != nil {
			output.Error = scanErr.Error()
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(output); err != nil {
			return fmt.Errorf("failed to encode output: %w", err)
		}
		return scanErr
	}

	renderer.RenderSummary(a.reg.Summary())
	if scanErr != nil {
		return scanErr
	}

	fmt.Fprintf(out, "Scanned %d files (%d bytes) in %d directories of %s\n", res.Files, res.Bytes, res.Dirs, res.Root)
	return nil
}
