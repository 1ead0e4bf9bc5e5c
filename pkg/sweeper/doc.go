// Package sweeper runs ClearCompleted on a cron schedule so long-lived
// processes do not accumulate finished operations. It can also prune the
// persisted history past a retention window.
package sweeper
