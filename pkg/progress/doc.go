// Package progress tracks named, possibly nested, long-running operations.
//
// Invariants:
// - Operation names are unique within a Registry.
// - Terminal records (completed, failed, cancelled) are never mutated again, only removed.
// - A record's Children only names live records that were started with it as parent.
// - Every state change is published to update callbacks in registration order.
//
// Usage:
//
//	reg := progress.NewRegistry()
//	err := progress.Track(ctx, reg, "build", progress.StartOptions{Total: len(files)},
//		func(ctx context.Context, op *progress.Op) error {
//			for range files {
//				op.Add(1)
//			}
//			return nil
//		})
package progress
