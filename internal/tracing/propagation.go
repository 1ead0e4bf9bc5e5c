package tracing

import (
	"context"

	"github.com/rs/zerolog"
)

// PropagateToOperation derives the context of a nested operation.
// It keeps the trace ID, generates a new run ID and records the operation name.
func PropagateToOperation(ctx context.Context, operation string) context.Context {
	traceID := GetTraceID(ctx)
	if traceID == "" {
		traceID = NewTraceID()
	}

	newCtx := WithTraceID(ctx, traceID)
	newCtx = WithRunID(newCtx, NewRunID())
	return WithOperation(newCtx, operation)
}

// LoggerFromContext adds tracing context to a zerolog logger
func LoggerFromContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	tc := FromContext(ctx)

	if tc.TraceID != "" {
		logger = logger.With().Str("trace_id", tc.TraceID).Logger()
	}
	if tc.RunID != "" {
		logger = logger.With().Str("run_id", tc.RunID).Logger()
	}
	if tc.Operation != "" {
		logger = logger.With().Str("operation", tc.Operation).Logger()
	}

	return logger
}
