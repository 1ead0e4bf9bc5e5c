package progress

import (
	"context"
	"errors"
	"fmt"

	"github.com/harun/doctrack/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const tracerName = "doctrack.progress"

// Op is a handle on one running operation inside a Track scope
type Op struct {
	reg  *Registry
	name string
}

// Name returns the operation name
func (o *Op) Name() string {
	return o.name
}

// Set sets the current progress value
func (o *Op) Set(current int) error {
	_, err := o.reg.Update(o.name, Update{Current: &current})
	return err
}

// Add increments the current progress value
func (o *Op) Add(n int) error {
	_, err := o.reg.Update(o.name, Update{Increment: &n})
	return err
}

// Message replaces the status message
func (o *Op) Message(msg string) error {
	_, err := o.reg.Update(o.name, Update{Message: &msg})
	return err
}

// Metadata merges values into the operation metadata
func (o *Op) Metadata(values map[string]any) error {
	_, err := o.reg.Update(o.name, Update{Metadata: values})
	return err
}

// Update applies an arbitrary update
func (o *Op) Update(u Update) (Record, error) {
	return o.reg.Update(o.name, u)
}

// Snapshot returns the current state of the operation
func (o *Op) Snapshot() (Record, bool) {
	return o.reg.Get(o.name)
}

// Track runs fn as a tracked operation. The operation completes when fn
// returns nil and fails with "Operation failed: <err>" otherwise; the error
// from fn is returned unchanged. A panic in fn fails the operation and is
// re-raised.
//
// When opts.Parent is empty the operation is nested under the operation of
// an enclosing Track, if ctx carries one. A nil registry means Default().
func Track(ctx context.Context, reg *Registry, name string, opts StartOptions, fn func(ctx context.Context, op *Op) error) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if reg == nil {
		reg = Default()
	}
	if opts.Parent == "" {
		opts.Parent = tracing.GetOperation(ctx)
	}

	ctx, span := tracing.StartSpan(
		ctx,
		tracerName,
		"progress.track",
		attribute.String("operation", name),
		attribute.String("parent", opts.Parent),
		attribute.Int("total", opts.Total),
	)
	defer span.End()

	if _, err := reg.Start(name, opts); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	ctx = tracing.PropagateToOperation(ctx, name)
	logger := tracing.LoggerFromContext(ctx, reg.logger)

	returned := false
	defer func() {
		if returned {
			return
		}
		rec := recover()
		if rec == nil {
			// runtime.Goexit inside fn
			reg.finish(name, StatusFailed, "Operation aborted")
			return
		}
		reg.finish(name, StatusFailed, fmt.Sprintf("Operation failed: %v", rec))
		span.SetStatus(codes.Error, fmt.Sprint(rec))
		panic(rec)
	}()

	err = fn(ctx, &Op{reg: reg, name: name})
	returned = true

	if err != nil {
		reg.finish(name, StatusFailed, fmt.Sprintf("Operation failed: %v", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Debug().Err(err).Msg("Tracked operation failed")
		return err
	}

	reg.finish(name, StatusCompleted, "")
	return nil
}

// finish finalizes a tracked operation. Operations the scope already
// finished or that were cleared meanwhile are left alone.
func (r *Registry) finish(name string, status Status, message string) {
	var msg *string
	if message != "" {
		msg = &message
	}

	_, err := r.Complete(name, status, msg)
	if err != nil && !errors.Is(err, ErrAlreadyFinished) && !errors.Is(err, ErrNotFound) {
		r.logger.Warn().Err(err).Str("operation", name).Msg("Failed to finalize tracked operation")
	}
}

// Wrap returns fn as a function that is tracked under name on every call.
// A nil registry resolves to Default() at call time.
func Wrap(reg *Registry, name string, opts StartOptions, fn func(ctx context.Context, op *Op) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return Track(ctx, reg, name, opts, fn)
	}
}
