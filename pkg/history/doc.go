// Package history keeps a SQLite log of finished operations.
//
// A Store attached to a progress.Registry inserts one row per operation that
// reaches a terminal status. The row carries a few indexed columns and the
// full JSON form of the record as payload.
package history
