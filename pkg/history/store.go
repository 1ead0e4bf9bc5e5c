package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harun/doctrack/internal/observability"
	"github.com/harun/doctrack/pkg/progress"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned when no stored entry matches
var ErrNotFound = errors.New("history entry not found")

const writeTimeout = 5 * time.Second

// Entry is one stored terminal record
type Entry struct {
	ID         int64           `json:"id"`
	RecordedAt time.Time       `json:"recorded_at"`
	Record     progress.Record `json:"record"`
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Name   string
	Status progress.Status
	Limit  int
}

// Config holds history store configuration
type Config struct {
	DBPath string
	Logger zerolog.Logger
}

// Store persists finished operations in SQLite
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
	now    func() time.Time
}

// NewStore opens (and creates when missing) the history database
func NewStore(cfg Config) (*Store, error) {
	observability.EnsureRegistered()

	if cfg.DBPath == "" {
		return nil, errors.New("database path is required")
	}

	db, err := sql.Open("sqlite3", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{
		db:     db,
		logger: cfg.Logger.With().Str("component", "history").Logger(),
		now:    time.Now,
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s.logger.Debug().Str("path", cfg.DBPath).Msg("History store opened")
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS operations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			current INTEGER NOT NULL,
			total INTEGER NOT NULL,
			message TEXT NOT NULL,
			parent TEXT,
			started_at INTEGER,
			ended_at INTEGER,
			elapsed_seconds REAL NOT NULL,
			payload TEXT NOT NULL,
			recorded_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_operations_name ON operations(name);
		CREATE INDEX IF NOT EXISTS idx_operations_status ON operations(status);
		CREATE INDEX IF NOT EXISTS idx_operations_recorded ON operations(recorded_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Save stores a record. Only terminal records are accepted.
func (s *Store) Save(ctx context.Context, rec progress.Record) (err error) {
	defer func() {
		observability.RecordHistoryWrite(err == nil)
	}()

	if !rec.IsComplete() {
		return fmt.Errorf("operation %q is still %s", rec.Name, rec.Status)
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	var parent sql.NullString
	if rec.Parent != "" {
		parent = sql.NullString{String: rec.Parent, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO operations (name, status, current, total, message, parent, started_at, ended_at, elapsed_seconds, payload, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Name,
		string(rec.Status),
		rec.Current,
		rec.Total,
		rec.Message,
		parent,
		unixMilli(rec.StartTime),
		unixMilli(rec.EndTime),
		rec.Elapsed.Seconds(),
		string(payload),
		s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert operation %q: %w", rec.Name, err)
	}
	return nil
}

// Attach registers a callback on reg that saves every record reaching a
// terminal status. Detach with reg.RemoveCallback.
func (s *Store) Attach(reg *progress.Registry) progress.CallbackID {
	return reg.AddCallback(func(name string, rec progress.Record) {
		if !rec.IsComplete() {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		if err := s.Save(ctx, rec); err != nil {
			s.logger.Error().Err(err).Str("operation", name).Msg("Failed to record operation history")
		}
	})
}

// List returns stored entries, newest first
func (s *Store) List(ctx context.Context, f Filter) ([]Entry, error) {
	var (
		where []string
		args  []any
	)
	if f.Name != "" {
		where = append(where, "name = ?")
		args = append(args, f.Name)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}

	query := "SELECT id, payload, recorded_at FROM operations"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Latest returns the most recent entry stored for name
func (s *Store) Latest(ctx context.Context, name string) (Entry, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, payload, recorded_at FROM operations WHERE name = ? ORDER BY id DESC LIMIT 1",
		name,
	)

	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return entry, err
}

// Prune deletes entries recorded before cutoff and returns how many were removed
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM operations WHERE recorded_at < ?", cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Debug().Int64("removed", n).Msg("Pruned operation history")
	}
	return n, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var (
		entry      Entry
		payload    string
		recordedAt int64
	)
	if err := row.Scan(&entry.ID, &payload, &recordedAt); err != nil {
		return Entry{}, err
	}
	if err := json.Unmarshal([]byte(payload), &entry.Record); err != nil {
		return Entry{}, fmt.Errorf("failed to decode entry %d: %w", entry.ID, err)
	}
	entry.RecordedAt = time.UnixMilli(recordedAt)
	return entry, nil
}

func unixMilli(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}
