package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS pipeline_runs (
	run_id TEXT PRIMARY KEY,
	city TEXT NOT NULL,
	status TEXT NOT NULL,
	vintage DATE,
	datasets JSONB NOT NULL DEFAULT '[]'::jsonb,
	ledgers JSONB NOT NULL DEFAULT '{}'::jsonb,
	error_message TEXT,
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_pipeline_runs_city ON pipeline_runs(city, started_at DESC);

CREATE TABLE IF NOT EXISTS features (
	run_id TEXT NOT NULL REFERENCES pipeline_runs(run_id) ON DELETE CASCADE,
	dataset TEXT NOT NULL,
	osm_type TEXT NOT NULL,
	osm_id BIGINT NOT NULL,
	kind TEXT NOT NULL,
	network_mode TEXT,
	tag TEXT NOT NULL,
	category TEXT,
	aoinm TEXT NOT NULL,
	name TEXT,
	length_m DOUBLE PRECISION NOT NULL DEFAULT 0,
	area_m2 DOUBLE PRECISION NOT NULL DEFAULT 0,
	geom BYTEA
);

CREATE INDEX IF NOT EXISTS idx_features_dataset ON features(dataset, aoinm);

CREATE TABLE IF NOT EXISTS feature_summaries (
	run_id TEXT NOT NULL REFERENCES pipeline_runs(run_id) ON DELETE CASCADE,
	dataset TEXT NOT NULL,
	aoinm TEXT NOT NULL,
	category TEXT NOT NULL,
	count INTEGER NOT NULL,
	aoi_total INTEGER NOT NULL,
	category_percent DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (dataset, aoinm, category)
);
`

// EnsureSchema creates the pipeline tables.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker/cli startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101801)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
