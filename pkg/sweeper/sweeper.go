package sweeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/harun/doctrack/internal/observability"
	"github.com/harun/doctrack/pkg/progress"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const pruneTimeout = 30 * time.Second

// Pruner removes stored history older than a cutoff
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// Config holds sweeper configuration
type Config struct {
	// Schedule is a standard cron expression or a descriptor such as "@every 1m"
	Schedule string
	Logger   zerolog.Logger

	// History and Retention are optional. When both are set every sweep
	// also prunes history older than Retention.
	History   Pruner
	Retention time.Duration
}

// Result describes one sweep
type Result struct {
	Cleared int
	Pruned  int64
}

// Sweeper periodically drops finished operations from a registry
type Sweeper struct {
	reg       *progress.Registry
	history   Pruner
	retention time.Duration
	logger    zerolog.Logger
	now       func() time.Time

	cron  *cron.Cron
	entry cron.EntryID

	mu      sync.Mutex
	running bool
}

// New creates a sweeper for reg. It does not run until Start.
func New(reg *progress.Registry, cfg Config) (*Sweeper, error) {
	observability.EnsureRegistered()

	if reg == nil {
		return nil, errors.New("registry is required")
	}
	if cfg.Schedule == "" {
		return nil, errors.New("schedule is required")
	}

	s := &Sweeper{
		reg:       reg,
		history:   cfg.History,
		retention: cfg.Retention,
		logger:    cfg.Logger.With().Str("component", "sweeper").Logger(),
		now:       time.Now,
	}

	cronLogger := cronLog{logger: s.logger}
	s.cron = cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	entry, err := s.cron.AddFunc(cfg.Schedule, func() {
		s.Sweep(context.Background())
	})
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", cfg.Schedule, err)
	}
	s.entry = entry

	return s, nil
}

// Start begins running sweeps on schedule
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.cron.Start()
	s.logger.Info().Time("next", s.Next()).Msg("Sweeper started")
}

// Stop halts scheduling and waits for a running sweep, or for ctx to end
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info().Msg("Sweeper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next returns the time of the next scheduled sweep, zero when not started
func (s *Sweeper) Next() time.Time {
	return s.cron.Entry(s.entry).Next
}

// Sweep runs one pass immediately
func (s *Sweeper) Sweep(ctx context.Context) Result {
	res := Result{Cleared: s.reg.ClearCompleted()}
	observability.RecordSweep(res.Cleared)

	if s.history != nil && s.retention > 0 {
		ctx, cancel := context.WithTimeout(ctx, pruneTimeout)
		defer cancel()

		pruned, err := s.history.Prune(ctx, s.now().Add(-s.retention))
		if err != nil {
			s.logger.Error().Err(err).Msg("Failed to prune operation history")
		}
		res.Pruned = pruned
	}

	if res.Cleared > 0 || res.Pruned > 0 {
		s.logger.Debug().
			Int("cleared", res.Cleared).
			Int64("pruned", res.Pruned).
			Msg("Sweep complete")
	}
	return res
}

// cronLog adapts zerolog to the cron.Logger interface
type cronLog struct {
	logger zerolog.Logger
}

func (l cronLog) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLog) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
