// Package sqlite provides a SQLite-backed participant record store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/koscakluka/ema-battle/core/records"
	"github.com/koscakluka/ema-battle/core/records/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store persists participant records in SQLite.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

var _ records.Store = (*Store)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite record store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(context.Background(), sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

const upsertResult = `INSERT INTO participant_records (name_key, name, wins, losses, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (name_key) DO UPDATE SET
    wins = wins + excluded.wins,
    losses = losses + excluded.losses,
    updated_at = excluded.updated_at`

// RecordResult adds a win for winner and a loss for loser in one
// transaction.
func (s *Store) RecordResult(ctx context.Context, winner, loser string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if err := records.ValidateResult(winner, loser); err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record transaction: %w", err)
	}
	updatedAt := toMillis(s.now())
	if _, err := tx.ExecContext(ctx, upsertResult, records.Key(winner), strings.TrimSpace(winner), 1, 0, updatedAt); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record win for %q: %w", winner, err)
	}
	if _, err := tx.ExecContext(ctx, upsertResult, records.Key(loser), strings.TrimSpace(loser), 0, 1, updatedAt); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record loss for %q: %w", loser, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit record transaction: %w", err)
	}
	return nil
}

// Get returns the record for name.
func (s *Store) Get(ctx context.Context, name string) (records.Record, error) {
	if err := ctx.Err(); err != nil {
		return records.Record{}, err
	}
	if s == nil || s.sqlDB == nil {
		return records.Record{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT name, wins, losses, updated_at FROM participant_records WHERE name_key = ?`,
		records.Key(name),
	)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return records.Record{}, records.ErrNotFound
	}
	if err != nil {
		return records.Record{}, fmt.Errorf("get participant record: %w", err)
	}
	return record, nil
}

// List returns every record in standings order.
func (s *Store) List(ctx context.Context) ([]records.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT name, wins, losses, updated_at FROM participant_records
		 ORDER BY wins DESC, losses ASC, name_key ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list participant records: %w", err)
	}
	defer rows.Close()

	result := []records.Record{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan participant record: %w", err)
		}
		result = append(result, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate participant records: %w", err)
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (records.Record, error) {
	var (
		record    records.Record
		updatedAt int64
	)
	if err := row.Scan(&record.Name, &record.Wins, &record.Losses, &updatedAt); err != nil {
		return records.Record{}, err
	}
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}
