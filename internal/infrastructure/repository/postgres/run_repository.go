package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paulmach/orb/encoding/wkb"

	"github.com/kirillkom/city-osm-features/internal/core/domain"
	"github.com/kirillkom/city-osm-features/internal/infrastructure/resilience"
)

// RunRepository records city runs, their feature rows and summaries.
type RunRepository struct {
	db       *sql.DB
	executor *resilience.Executor
}

// NewRunRepository wires the repository. executor may be nil to run statements once.
func NewRunRepository(db *sql.DB, executor *resilience.Executor) *RunRepository {
	return &RunRepository{db: db, executor: executor}
}

func (r *RunRepository) exec(ctx context.Context, operation string, fn func(context.Context) error) error {
	var err error
	if r.executor == nil {
		err = fn(ctx)
	} else {
		err = r.executor.Execute(ctx, operation, fn, classifyPostgresError)
	}
	return resilience.WrapTemporary(operation, err, classifyPostgresError)
}

func (r *RunRepository) SaveRun(ctx context.Context, run *domain.CityRun) error {
	datasets, err := json.Marshal(run.Datasets)
	if err != nil {
		return fmt.Errorf("marshal datasets: %w", err)
	}
	ledgers, err := json.Marshal(run.Ledgers)
	if err != nil {
		return fmt.Errorf("marshal ledgers: %w", err)
	}
	var vintage, finished sql.NullTime
	if !run.Vintage.IsZero() {
		vintage = sql.NullTime{Time: run.Vintage, Valid: true}
	}
	if !run.FinishedAt.IsZero() {
		finished = sql.NullTime{Time: run.FinishedAt, Valid: true}
	}

	return r.exec(ctx, "postgres.save_run", func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx, `
INSERT INTO pipeline_runs (run_id, city, status, vintage, datasets, ledgers, error_message, started_at, finished_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (run_id) DO UPDATE SET
	status = EXCLUDED.status,
	vintage = EXCLUDED.vintage,
	datasets = EXCLUDED.datasets,
	ledgers = EXCLUDED.ledgers,
	error_message = EXCLUDED.error_message,
	finished_at = EXCLUDED.finished_at
`, run.RunID, run.City, string(run.Status), vintage, datasets, ledgers, run.Error, run.StartedAt, finished)
		if err != nil {
			return fmt.Errorf("upsert run: %w", err)
		}
		return nil
	})
}

func (r *RunRepository) GetRun(ctx context.Context, runID string) (*domain.CityRun, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT run_id, city, status, vintage, datasets, ledgers, error_message, started_at, finished_at
FROM pipeline_runs
WHERE run_id = $1
`, runID)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get run", fmt.Errorf("run %s", runID))
		}
		return nil, err
	}
	return run, nil
}

// ListRuns returns the latest runs, newest first, optionally for one city.
func (r *RunRepository) ListRuns(ctx context.Context, city string, limit int) ([]domain.CityRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT run_id, city, status, vintage, datasets, ledgers, error_message, started_at, finished_at
FROM pipeline_runs
WHERE $1 = '' OR lower(city) = lower($1)
ORDER BY started_at DESC
LIMIT $2
`, city, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	out := make([]domain.CityRun, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*domain.CityRun, error) {
	var (
		run               domain.CityRun
		status            string
		vintage, finished sql.NullTime
		datasets, ledgers []byte
		errMessage        sql.NullString
	)
	err := row.Scan(&run.RunID, &run.City, &status, &vintage, &datasets, &ledgers, &errMessage, &run.StartedAt, &finished)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	run.Status = domain.RunStatus(status)
	run.Error = errMessage.String
	if vintage.Valid {
		run.Vintage = vintage.Time.UTC()
	}
	if finished.Valid {
		run.FinishedAt = finished.Time
	}
	if err := json.Unmarshal(datasets, &run.Datasets); err != nil {
		return nil, fmt.Errorf("unmarshal datasets: %w", err)
	}
	if err := json.Unmarshal(ledgers, &run.Ledgers); err != nil {
		return nil, fmt.Errorf("unmarshal ledgers: %w", err)
	}
	return &run, nil
}

// SaveFeatures replaces the rows of one dataset for a run.
func (r *RunRepository) SaveFeatures(ctx context.Context, runID string, ds domain.Dataset, table *domain.FeatureTable) error {
	if table == nil {
		return domain.WrapError(domain.ErrArgumentType, "save features", errors.New("nil table"))
	}
	geoms := make([][]byte, len(table.Records))
	for i, rec := range table.Records {
		if rec.Geometry == nil {
			continue
		}
		b, err := wkb.Marshal(rec.Geometry)
		if err != nil {
			return fmt.Errorf("encode geometry %s/%d: %w", rec.OSMType, rec.OSMID, err)
		}
		geoms[i] = b
	}

	return r.exec(ctx, "postgres.save_features", func(ctx context.Context) error {
		return r.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, `DELETE FROM features WHERE run_id = $1 AND dataset = $2`, runID, ds.FileName()); err != nil {
				return fmt.Errorf("clear features: %w", err)
			}
			stmt, err := tx.PrepareContext(ctx, `
INSERT INTO features (run_id, dataset, osm_type, osm_id, kind, network_mode, tag, category, aoinm, name, length_m, area_m2, geom)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
`)
			if err != nil {
				return fmt.Errorf("prepare feature insert: %w", err)
			}
			defer stmt.Close()
			for i, rec := range table.Records {
				_, err := stmt.ExecContext(ctx,
					runID, ds.FileName(), rec.OSMType, rec.OSMID, string(rec.Kind), table.NetworkMode,
					rec.Tag, rec.Category, rec.AOIName, rec.Name, rec.LengthM, rec.AreaM2, geoms[i],
				)
				if err != nil {
					return fmt.Errorf("insert feature %s/%d: %w", rec.OSMType, rec.OSMID, err)
				}
			}
			return nil
		})
	})
}

// SaveSummary replaces the summary rows of one dataset.
func (r *RunRepository) SaveSummary(ctx context.Context, runID string, ds domain.Dataset, rows []domain.SummaryRow) error {
	return r.exec(ctx, "postgres.save_summary", func(ctx context.Context) error {
		return r.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, `DELETE FROM feature_summaries WHERE dataset = $1`, ds.FileName()); err != nil {
				return fmt.Errorf("clear summary: %w", err)
			}
			for _, row := range rows {
				_, err := tx.ExecContext(ctx, `
INSERT INTO feature_summaries (run_id, dataset, aoinm, category, count, aoi_total, category_percent)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`, runID, ds.FileName(), row.AOIName, row.Category, row.Count, row.AOITotal, row.CategoryPercent)
				if err != nil {
					return fmt.Errorf("insert summary row: %w", err)
				}
			}
			return nil
		})
	})
}

func (r *RunRepository) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

