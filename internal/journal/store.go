package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/voxlabs/voxd/internal/config"
	_ "modernc.org/sqlite"
)

// Entry is one completed transcription, live or file.
type Entry struct {
	ID              int64
	Timestamp       time.Time
	DurationSeconds float64
	Text            string
	Source          string
}

// Store is the SQLite-backed transcription journal. Retention modes:
// "persistent" keeps entries across runs, "session" clears the journal on
// open so it only covers the current run, "ephemeral" holds no database at
// all and every operation is a no-op, so callers never branch on retention.
type Store struct {
	db    *sql.DB
	cfg   config.JournalConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the journal according to config.
func Open(ctx context.Context, cfg config.JournalConfig, log *slog.Logger) (*Store, error) {
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.RetentionMode == "session" {
		if err := s.Clear(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("reset session journal: %w", err)
		}
	}

	if cfg.VacuumOnStart {
		if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
			log.Warn("journal vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("journal prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	ddl := `
CREATE TABLE IF NOT EXISTS transcriptions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    recorded_at TIMESTAMP NOT NULL,
    duration_seconds REAL NOT NULL,
    text TEXT NOT NULL,
    source TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transcriptions_recorded ON transcriptions(recorded_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append writes one journal entry.
func (s *Store) Append(ctx context.Context, entry Entry) error {
	if s.db == nil {
		return nil
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.clock()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transcriptions(recorded_at, duration_seconds, text, source)
		 VALUES(?, ?, ?, ?)`,
		entry.Timestamp.UTC().Format(time.RFC3339Nano), entry.DurationSeconds, entry.Text, entry.Source)
	return err
}

// List retrieves up to limit entries, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, recorded_at, duration_seconds, text, source
		 FROM transcriptions ORDER BY recorded_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var recorded string
		if err := rows.Scan(&e.ID, &recorded, &e.DurationSeconds, &e.Text, &e.Source); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, recorded); err == nil {
			e.Timestamp = ts
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Clear removes every entry.
func (s *Store) Clear(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM transcriptions`)
	return err
}

// Prune applies configured retention. Called on startup; safe to call
// again at any time.
func (s *Store) Prune(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
		if _, err = tx.ExecContext(ctx,
			`DELETE FROM transcriptions WHERE recorded_at < ?`,
			cutoff.UTC().Format(time.RFC3339Nano)); err != nil {
			return err
		}
	}
	if s.cfg.MaxEntries > 0 {
		if _, err = tx.ExecContext(ctx, `DELETE FROM transcriptions WHERE id IN (
			SELECT id FROM transcriptions ORDER BY recorded_at DESC, id DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxEntries); err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}
