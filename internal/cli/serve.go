package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/harun/doctrack/internal/scan"
	"github.com/spf13/cobra"
)

var (
	serveAddr   string
	pidFileFlag string
)

var serveCmd = &cobra.Command{
	Use:   "serve [dir...]",
	Short: "Serve live progress, metrics and the operation tree",
	Long: `Serve live progress over websocket (/ws), prometheus metrics (/metrics)
and the current operation tree (/operations) until interrupted.
Directories given as arguments are scanned in the background once the
server is listening.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address for all endpoints (default from config)")
	serveCmd.Flags().StringVar(&pidFileFlag, "pid-file", "", "PID file path (default is $HOME/.doctrack/doctrack.pid)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	pidFile := resolvePIDFile()
	if isRunning(pidFile) {
		return fmt.Errorf("server is already running (PID file: %s)", pidFile)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Stream.Enabled = true
	cfg.Metrics.Enabled = true
	if serveAddr != "" {
		cfg.Stream.Addr = serveAddr
		cfg.Metrics.Addr = serveAddr
	}

	a, err := newApp(cmd, cfg, appOptions{history: true, stream: true, metrics: true, sweeper: true})
	if err != nil {
		return err
	}
	defer a.Close()

	if err := writePID(pidFile); err != nil {
		return err
	}
	defer os.Remove(pidFile)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, dir := range args {
		go func() {
			if _, err := scan.Dir(ctx, a.reg, dir); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error().Err(err).Str("dir", dir).Msg("Scan failed")
			}
		}()
	}

	a.logger.Info().Int("pid", os.Getpid()).Msg("doctrack server started")
	<-ctx.Done()
	a.logger.Info().Msg("Shutting down")
	return nil
}
