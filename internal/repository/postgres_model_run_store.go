package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"CoinCast/internal/domain/models"
	"CoinCast/internal/domain/repository"
	"CoinCast/pkg/logger"
)

// PostgresModelRunStore persists model run rows in Postgres.
type PostgresModelRunStore struct {
	db  *sql.DB
	log *logger.Logger
}

func NewPostgresModelRunStore(db *sql.DB) *PostgresModelRunStore {
	return &PostgresModelRunStore{db: db}
}

func (s *PostgresModelRunStore) SetLogger(l *logger.Logger) { s.log = l }

func (s *PostgresModelRunStore) Init(ctx context.Context) error {
	stmt := `CREATE TABLE IF NOT EXISTS forecast_model_runs (
		id                  BIGSERIAL PRIMARY KEY,
		scope               TEXT NOT NULL,
		model_family        TEXT NOT NULL,
		cell_type           TEXT NOT NULL,
		horizon_days        INT NOT NULL,
		target_transform    TEXT NOT NULL,
		key_digest          TEXT NOT NULL,
		model_name          TEXT NOT NULL,
		work_dir            TEXT NOT NULL,
		artifact_path       TEXT NOT NULL,
		training_crypto_ids JSONB NOT NULL DEFAULT '[]',
		hyperparams         JSONB NOT NULL DEFAULT '{}',
		val_split           DOUBLE PRECISION NOT NULL DEFAULT 0,
		train_start_date    TIMESTAMPTZ,
		train_end_date      TIMESTAMPTZ,
		cutoff_date         TIMESTAMPTZ,
		status              TEXT NOT NULL,
		created_at          TIMESTAMPTZ NOT NULL,
		updated_at          TIMESTAMPTZ NOT NULL
	)`
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("init model run table: %w", err)
	}
	// Every training inserts a fresh row, so the digest is indexed but
	// not unique.
	idx := `CREATE INDEX IF NOT EXISTS idx_model_runs_scope_digest
		ON forecast_model_runs (scope, key_digest)`
	if _, err := s.db.ExecContext(ctx, idx); err != nil {
		return fmt.Errorf("init model run index: %w", err)
	}
	return nil
}

func (s *PostgresModelRunStore) Create(ctx context.Context, run *models.ModelRun) error {
	ids, params, err := marshalRunJSON(run)
	if err != nil {
		return err
	}
	query := `INSERT INTO forecast_model_runs
		(scope, model_family, cell_type, horizon_days, target_transform, key_digest,
		 model_name, work_dir, artifact_path, training_crypto_ids, hyperparams,
		 val_split, train_start_date, train_end_date, cutoff_date, status,
		 created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		RETURNING id`
	err = s.db.QueryRowContext(ctx, query,
		run.Scope, string(run.ModelFamily), string(run.CellType), run.HorizonDays,
		run.TargetTransform, run.KeyDigest, run.ModelName, run.WorkDir,
		run.ArtifactPath, ids, params, run.ValSplit,
		nullableTime(run.TrainStartDate), nullableTime(run.TrainEndDate), nullableTime(run.CutoffDate),
		run.Status, run.CreatedAt, run.UpdatedAt,
	).Scan(&run.ID)
	if err != nil {
		return fmt.Errorf("create model run: %w", err)
	}
	if s.log != nil {
		s.log.Info("model run created",
			logger.Int64("run_id", run.ID),
			logger.String("model_name", run.ModelName))
	}
	return nil
}

func (s *PostgresModelRunStore) Update(ctx context.Context, run *models.ModelRun) error {
	ids, params, err := marshalRunJSON(run)
	if err != nil {
		return err
	}
	query := `UPDATE forecast_model_runs SET
		scope = $1, model_family = $2, cell_type = $3, horizon_days = $4,
		target_transform = $5, key_digest = $6, model_name = $7, work_dir = $8,
		artifact_path = $9, training_crypto_ids = $10, hyperparams = $11,
		val_split = $12, train_start_date = $13, train_end_date = $14,
		cutoff_date = $15, status = $16, updated_at = $17
		WHERE id = $18`
	res, err := s.db.ExecContext(ctx, query,
		run.Scope, string(run.ModelFamily), string(run.CellType), run.HorizonDays,
		run.TargetTransform, run.KeyDigest, run.ModelName, run.WorkDir,
		run.ArtifactPath, ids, params, run.ValSplit,
		nullableTime(run.TrainStartDate), nullableTime(run.TrainEndDate), nullableTime(run.CutoffDate),
		run.Status, run.UpdatedAt, run.ID)
	if err != nil {
		return fmt.Errorf("update model run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *PostgresModelRunStore) GetByID(ctx context.Context, id int64) (*models.ModelRun, error) {
	row := s.db.QueryRowContext(ctx, selectRunQuery+" WHERE id = $1", id)
	return scanRun(row)
}

func (s *PostgresModelRunStore) FindByDigest(ctx context.Context, scope, digest string) (*models.ModelRun, error) {
	row := s.db.QueryRowContext(ctx,
		selectRunQuery+" WHERE scope = $1 AND key_digest = $2 ORDER BY updated_at DESC LIMIT 1",
		scope, digest)
	return scanRun(row)
}

func (s *PostgresModelRunStore) FindLatestTrained(ctx context.Context, scope string, cell models.CellType) (*models.ModelRun, error) {
	row := s.db.QueryRowContext(ctx,
		selectRunQuery+" WHERE scope = $1 AND cell_type = $2 AND status = $3 ORDER BY updated_at DESC LIMIT 1",
		scope, string(cell), models.RunStatusTrained)
	return scanRun(row)
}

const selectRunQuery = `SELECT id, scope, model_family, cell_type, horizon_days,
	target_transform, key_digest, model_name, work_dir, artifact_path,
	training_crypto_ids, hyperparams, val_split, train_start_date,
	train_end_date, cutoff_date, status, created_at, updated_at
	FROM forecast_model_runs`

func scanRun(row *sql.Row) (*models.ModelRun, error) {
	var run models.ModelRun
	var family, cell string
	var ids, params []byte
	var trainStart, trainEnd, cutoff sql.NullTime
	err := row.Scan(&run.ID, &run.Scope, &family, &cell, &run.HorizonDays,
		&run.TargetTransform, &run.KeyDigest, &run.ModelName, &run.WorkDir,
		&run.ArtifactPath, &ids, &params, &run.ValSplit,
		&trainStart, &trainEnd, &cutoff, &run.Status,
		&run.CreatedAt, &run.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan model run: %w", err)
	}
	run.ModelFamily = models.ModelFamily(family)
	run.CellType = models.CellType(cell)
	run.TrainStartDate = trainStart.Time
	run.TrainEndDate = trainEnd.Time
	run.CutoffDate = cutoff.Time
	if err := json.Unmarshal(ids, &run.TrainingCryptoIDs); err != nil {
		return nil, fmt.Errorf("parse training ids: %w", err)
	}
	if err := json.Unmarshal(params, &run.Hyperparams); err != nil {
		return nil, fmt.Errorf("parse hyperparams: %w", err)
	}
	return &run, nil
}

// nullableTime maps the zero time to NULL.
func nullableTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func marshalRunJSON(run *models.ModelRun) ([]byte, []byte, error) {
	trainingIDs := run.TrainingCryptoIDs
	if trainingIDs == nil {
		trainingIDs = []int{}
	}
	ids, err := json.Marshal(trainingIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal training ids: %w", err)
	}
	hyper := run.Hyperparams
	if hyper == nil {
		hyper = map[string]any{}
	}
	params, err := json.Marshal(hyper)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal hyperparams: %w", err)
	}
	return ids, params, nil
}
