package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/harun/doctrack/pkg/history"
	"github.com/harun/doctrack/pkg/progress"
	"github.com/spf13/cobra"
)

var (
	historyName   string
	historyStatus string
	historyLimit  int
	historyJSON   bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List finished operations",
	Long: `List operations recorded in the history store, newest first.
Only operations that reached a terminal status (completed, failed or
cancelled) are recorded.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyName, "name", "", "only show operations with this name")
	historyCmd.Flags().StringVar(&historyStatus, "status", "", "only show operations with this status (completed, failed, cancelled)")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of entries (0 for all)")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "print entries as JSON")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	status := progress.Status(historyStatus)
	if status != "" && !status.IsTerminal() {
		return fmt.Errorf("invalid status %q (must be: completed, failed, cancelled)", historyStatus)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if _, err := os.Stat(cfg.History.DBPath); os.IsNotExist(err) {
		fmt.Fprintf(out, "No operation history at %s\n", cfg.History.DBPath)
		return nil
	}

	store, err := history.NewStore(history.Config{DBPath: cfg.History.DBPath})
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.List(cmd.Context(), history.Filter{
		Name:   historyName,
		Status: status,
		Limit:  historyLimit,
	})
	if err != nil {
		return err
	}

	if historyJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	if len(entries) == 0 {
		fmt.Fprintln(out, "No matching operations")
		return nil
	}

	renderer := newConsoleRenderer(out, cfg.Display)
	for _, e := range entries {
		fmt.Fprintf(out, "#%-5d %s %s %s (%s)\n",
			e.ID,
			e.RecordedAt.Format("2006-01-02 15:04:05"),
			renderer.tag(e.Record.Status),
			renderer.formatter.OperationStatus(e.Record, renderer.showBar),
			formatDuration(e.Record.Elapsed),
		)
	}
	return nil
}
