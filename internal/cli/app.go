package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/harun/doctrack/internal/config"
	"github.com/harun/doctrack/internal/logger"
	"github.com/harun/doctrack/internal/observability"
	"github.com/harun/doctrack/internal/tracing"
	"github.com/harun/doctrack/pkg/history"
	"github.com/harun/doctrack/pkg/progress"
	"github.com/harun/doctrack/pkg/stream"
	"github.com/harun/doctrack/pkg/sweeper"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

// appOptions selects the optional components of an app
type appOptions struct {
	history bool
	stream  bool
	metrics bool
	sweeper bool
}

// app is the wired runtime shared by commands
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	logger  zerolog.Logger
	reg     *progress.Registry
	history *history.Store
	hub     *stream.Hub
	sweeper *sweeper.Sweeper
	servers []*http.Server
	tracing bool
}

// loadConfig reads the config file and applies the --log-level override
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newApp builds the registry and the components selected by opts. Components
// that are disabled in the configuration stay off regardless of opts.
func newApp(cmd *cobra.Command, cfg *config.Config, opts appOptions) (*app, error) {
	l, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: true,
		Pretty:  cfg.Logging.Pretty,
		Out:     cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	a := &app{
		cfg:    cfg,
		log:    l,
		logger: l.Component("cli"),
	}

	a.reg = progress.NewRegistry(
		progress.WithLogger(l.GetZerolog()),
		progress.WithStrictParents(cfg.Registry.StrictParents),
	)
	progress.SetDefault(a.reg)

	if cfg.Tracing.Enabled {
		if err := tracing.InitOpenTelemetry(cfg.Tracing.ServiceName, cfg.Tracing.SampleRatio); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to initialize tracing")
		} else {
			a.tracing = true
		}
	}

	if opts.history && cfg.History.Enabled {
		store, err := history.NewStore(history.Config{
			DBPath: cfg.History.DBPath,
			Logger: l.GetZerolog(),
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.history = store
		store.Attach(a.reg)
	}

	if opts.stream && cfg.Stream.Enabled {
		a.hub = stream.NewHub(stream.Config{Logger: l.GetZerolog()})
		a.hub.Attach(a.reg)
	}

	if opts.sweeper && cfg.Sweeper.Enabled {
		swCfg := sweeper.Config{
			Schedule: cfg.Sweeper.Schedule,
			Logger:   l.GetZerolog(),
		}
		if a.history != nil && cfg.History.Retention != "" {
			retention, err := time.ParseDuration(cfg.History.Retention)
			if err != nil {
				a.Close()
				return nil, fmt.Errorf("invalid history retention: %w", err)
			}
			swCfg.History = a.history
			swCfg.Retention = retention
		}

		sw, err := sweeper.New(a.reg, swCfg)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.sweeper = sw
		sw.Start()
	}

	if err := a.listen(opts); err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

// listen starts the HTTP endpoints. Stream and metrics share one server when
// they are configured on the same address.
func (a *app) listen(opts appOptions) error {
	muxes := map[string]*http.ServeMux{}
	mux := func(addr string) *http.ServeMux {
		if m, ok := muxes[addr]; ok {
			return m
		}
		m := http.NewServeMux()
		m.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		m.Handle("/operations", operationsHandler(a.reg))
		muxes[addr] = m
		return m
	}

	if a.hub != nil {
		mux(a.cfg.Stream.Addr).Handle("/ws", a.hub)
	}
	if opts.metrics && a.cfg.Metrics.Enabled {
		mux(a.cfg.Metrics.Addr).Handle("/metrics", observability.MetricsHandler())
	}

	for addr, m := range muxes {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", addr, err)
		}

		srv := &http.Server{
			Handler:           m,
			ReadHeaderTimeout: 10 * time.Second,
		}
		a.servers = append(a.servers, srv)

		a.logger.Info().Str("addr", ln.Addr().String()).Msg("HTTP server listening")
		go func() {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error().Err(err).Msg("HTTP server failed")
			}
		}()
	}
	return nil
}

// Close stops every component. It is safe to call on a partially built app.
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.sweeper != nil {
		if err := a.sweeper.Stop(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to stop sweeper")
		}
	}
	for _, srv := range a.servers {
		if err := srv.Shutdown(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to shut down HTTP server")
		}
	}
	if a.hub != nil {
		a.hub.Close()
	}
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to close history store")
		}
	}
	if a.tracing {
		if err := tracing.ShutdownOpenTelemetry(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to shut down tracing")
		}
	}
	if a.log != nil {
		_ = a.log.Close()
	}
}
