// Package rowstore mirrors every appended cycle row into SQLite, one cell
// per (cycle, disk, metric).
package rowstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	pdcerrors "github.com/rcourtman/pulse-disk-collector/internal/errors"
	"github.com/rcourtman/pulse-disk-collector/internal/models"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// ServerScope is the disk value stored for server-level columns.
const ServerScope = ""

// Store is the SQLite mirror.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create row store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open row store: %w", err)
	}
	// Single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, path: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Debug().
		Str("component", "rowstore").
		Str("path", path).
		Msg("Row store opened")
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS cycle_values (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			cycle_id TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			disk TEXT NOT NULL,
			metric TEXT NOT NULL,
			kind TEXT NOT NULL,
			value_num REAL,
			value_text TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_cycle_values_lookup
		ON cycle_values(disk, metric, timestamp);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_cycle_values_cell
		ON cycle_values(cycle_id, disk, metric);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Insert stores every value column of row in one transaction. Re-inserting
// a cycle replaces its cells. Missing values are stored as NULL.
func (s *Store) Insert(ctx context.Context, row models.CycleRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return pdcerrors.WrapWriteError(s.path, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO cycle_values (cycle_id, timestamp, disk, metric, kind, value_num, value_text)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return pdcerrors.WrapWriteError(s.path, err)
	}
	defer stmt.Close()

	ts := row.Timestamp().Unix()
	count := 0
	for _, col := range row.Columns() {
		if col.Name == models.TimestampColumn || col.Name == models.CycleIDColumn {
			continue
		}
		disk, metric, ok := models.SplitDiskColumn(col.Name)
		if !ok {
			disk = ServerScope
		}
		num, text := nullable(col.Value)
		if _, err := stmt.ExecContext(ctx, row.CycleID(), ts, disk, metric, col.Value.Kind().String(), num, text); err != nil {
			tx.Rollback()
			return pdcerrors.WrapWriteError(s.path, fmt.Errorf("insert %s: %w", col.Name, err))
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return pdcerrors.WrapWriteError(s.path, err)
	}

	log.Debug().
		Str("component", "rowstore").
		Str("cycle_id", row.CycleID()).
		Int("count", count).
		Msg("Mirrored cycle row")
	return nil
}

func nullable(v models.Value) (sql.NullFloat64, sql.NullString) {
	if f, ok := v.Float(); ok {
		return sql.NullFloat64{Float64: f, Valid: true}, sql.NullString{}
	}
	if s, ok := v.Str(); ok {
		return sql.NullFloat64{}, sql.NullString{String: s, Valid: true}
	}
	return sql.NullFloat64{}, sql.NullString{}
}

// Stats summarises the mirror.
type Stats struct {
	DBPath string `json:"dbPath"`
	DBSize int64  `json:"dbSize"`
	Cycles int64  `json:"cycles"`
	Values int64  `json:"values"`
}

// GetStats returns storage statistics.
func (s *Store) GetStats(ctx context.Context) (Stats, error) {
	stats := Stats{DBPath: s.path}
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT cycle_id), COUNT(*) FROM cycle_values`,
	).Scan(&stats.Cycles, &stats.Values)
	if err != nil {
		return stats, fmt.Errorf("failed to count row store values: %w", err)
	}
	if fi, err := os.Stat(s.path); err == nil {
		stats.DBSize = fi.Size()
	}
	return stats, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
