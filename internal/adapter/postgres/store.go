// Package postgres upserts result rows into PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver

	"github.com/couchcryptid/climate-region-stats/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS region_year_stats (
	region_id    TEXT        NOT NULL,
	year         INTEGER     NOT NULL,
	variable     TEXT        NOT NULL,
	scenario     TEXT        NOT NULL,
	region_name  TEXT        NOT NULL,
	state        TEXT        NOT NULL DEFAULT '',
	valid_days   INTEGER     NOT NULL,
	stats        JSONB,
	missing      BOOLEAN     NOT NULL,
	run_id       TEXT        NOT NULL,
	processed_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (region_id, year, variable, scenario)
)`

const upsertRow = `
INSERT INTO region_year_stats (
	region_id, year, variable, scenario, region_name, state, valid_days, stats, missing, run_id, processed_at
) VALUES (
	:region_id, :year, :variable, :scenario, :region_name, :state, :valid_days, CAST(:stats AS JSONB), :missing, :run_id, :processed_at
)
ON CONFLICT (region_id, year, variable, scenario) DO UPDATE SET
	region_name  = EXCLUDED.region_name,
	state        = EXCLUDED.state,
	valid_days   = EXCLUDED.valid_days,
	stats        = EXCLUDED.stats,
	missing      = EXCLUDED.missing,
	run_id       = EXCLUDED.run_id,
	processed_at = EXCLUDED.processed_at`

// dbRow is the column mapping of region_year_stats.
type dbRow struct {
	RegionID   string    `db:"region_id"`
	Year       int       `db:"year"`
	Variable   string    `db:"variable"`
	Scenario   string    `db:"scenario"`
	RegionName string    `db:"region_name"`
	State      string    `db:"state"`
	ValidDays  int       `db:"valid_days"`
	Stats      *string   `db:"stats"`
	Missing    bool      `db:"missing"`
	RunID      string    `db:"run_id"`
	Processed  time.Time `db:"processed_at"`
}

func toDBRow(r domain.Row) (dbRow, error) {
	row := dbRow{
		RegionID:   r.RegionID,
		Year:       r.Year,
		Variable:   r.Variable,
		Scenario:   r.Scenario,
		RegionName: r.RegionName,
		State:      r.State,
		ValidDays:  r.ValidDays,
		Missing:    r.Missing,
		RunID:      r.RunID,
		Processed:  r.Processed.UTC(),
	}
	if !r.Missing {
		data, err := json.Marshal(r.Stats)
		if err != nil {
			return dbRow{}, fmt.Errorf("serialize stats of %s/%d: %w", r.RegionID, r.Year, err)
		}
		s := string(data)
		row.Stats = &s
	}
	return row, nil
}

// Store writes rows to region_year_stats.
// It implements pipeline.BatchLoader.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database connection: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close() //nolint:errcheck // ping error wins
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return New(db, logger), nil
}

// New wraps an open connection.
func New(db *sqlx.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// EnsureSchema creates the result table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create region_year_stats: %w", err)
	}
	return nil
}

// LoadBatch upserts rows in one transaction.
func (s *Store) LoadBatch(ctx context.Context, rows []domain.Row) error {
	if len(rows) == 0 {
		return nil
	}
	start := time.Now()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareNamedContext(ctx, upsertRow)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		row, err := toDBRow(r)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, row); err != nil {
			return fmt.Errorf("upsert %s/%d: %w", r.RegionID, r.Year, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.logger.Debug("rows upserted", "count", len(rows), "duration", time.Since(start))
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
