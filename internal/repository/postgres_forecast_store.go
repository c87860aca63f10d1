package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"CoinCast/internal/domain/models"
	"CoinCast/internal/domain/repository"
	"CoinCast/pkg/logger"
	"CoinCast/pkg/util"
)

// PostgresForecastStore persists forecast rows in per-kind tables.
type PostgresForecastStore struct {
	db  *sql.DB
	log *logger.Logger
}

func NewPostgresForecastStore(db *sql.DB) *PostgresForecastStore {
	return &PostgresForecastStore{db: db}
}

func (s *PostgresForecastStore) SetLogger(l *logger.Logger) { s.log = l }

func tableFor(kind models.ModelKind) string {
	if kind == models.KindGRU {
		return "gru_forecasts"
	}
	return "lstm_forecasts"
}

func (s *PostgresForecastStore) Init(ctx context.Context) error {
	for _, kind := range []models.ModelKind{models.KindLSTM, models.KindGRU} {
		stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			crypto_id    INT NOT NULL,
			date         DATE NOT NULL,
			price_hat    NUMERIC(18,8) NOT NULL,
			price_low    NUMERIC(18,8) NOT NULL,
			price_high   NUMERIC(18,8) NOT NULL,
			cutoff_date  DATE NOT NULL,
			horizon_days INT NOT NULL,
			model_run_id BIGINT NOT NULL,
			UNIQUE (crypto_id, date)
		)`, tableFor(kind))
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init %s: %w", tableFor(kind), err)
		}
	}
	return nil
}

// Replace swaps every stored row for (kind, cryptoID) in a single
// transaction so readers never observe a partial forecast.
func (s *PostgresForecastStore) Replace(ctx context.Context, kind models.ModelKind, cryptoID int, rows []models.ForecastRow) error {
	started := time.Now()
	table := tableFor(kind)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE crypto_id = $1", table), cryptoID); err != nil {
		return fmt.Errorf("delete forecasts: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (crypto_id, date, price_hat, price_low, price_high,
		 cutoff_date, horizon_days, model_run_id)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`, table))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.CryptoID, util.DateOnly(r.Date),
			r.PriceHat, r.PriceLow, r.PriceHigh,
			util.DateOnly(r.CutoffDate), r.HorizonDays, r.ModelRunID); err != nil {
			return fmt.Errorf("insert forecast: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace: %w", err)
	}

	if s.log != nil {
		s.log.Debug("forecasts replaced",
			logger.String("table", table),
			logger.Int("crypto_id", cryptoID),
			logger.Int("rows", len(rows)),
			logger.Duration("took", time.Since(started)))
	}
	return nil
}

func (s *PostgresForecastStore) Fetch(ctx context.Context, kind models.ModelKind, cryptoID int, since time.Time) ([]models.ForecastRow, error) {
	query := fmt.Sprintf(
		`SELECT crypto_id, date, price_hat, price_low, price_high,
		 cutoff_date, horizon_days, model_run_id
		 FROM %s WHERE crypto_id = $1`, tableFor(kind))
	args := []any{cryptoID}
	if !since.IsZero() {
		query += " AND date >= $2"
		args = append(args, util.DateOnly(since))
	}
	query += " ORDER BY date"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch forecasts: %w", err)
	}
	defer rows.Close()

	var out []models.ForecastRow
	for rows.Next() {
		var r models.ForecastRow
		if err := rows.Scan(&r.CryptoID, &r.Date, &r.PriceHat, &r.PriceLow, &r.PriceHigh,
			&r.CutoffDate, &r.HorizonDays, &r.ModelRunID); err != nil {
			return nil, fmt.Errorf("scan forecast: %w", err)
		}
		r.Date = util.DateOnly(r.Date)
		r.CutoffDate = util.DateOnly(r.CutoffDate)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate forecasts: %w", err)
	}
	return out, nil
}

func (s *PostgresForecastStore) Meta(ctx context.Context, kind models.ModelKind, cryptoID int) (*models.ForecastMeta, error) {
	query := fmt.Sprintf(
		`SELECT count(*), min(date), max(date), max(cutoff_date), max(horizon_days), max(model_run_id)
		 FROM %s WHERE crypto_id = $1`, tableFor(kind))

	var count int
	var first, last, cutoff sql.NullTime
	var horizon, runID sql.NullInt64
	err := s.db.QueryRowContext(ctx, query, cryptoID).Scan(&count, &first, &last, &cutoff, &horizon, &runID)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && count == 0) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("forecast meta: %w", err)
	}
	return &models.ForecastMeta{
		CryptoID:    cryptoID,
		Kind:        kind,
		Rows:        count,
		FirstDate:   util.DateOnly(first.Time),
		LastDate:    util.DateOnly(last.Time),
		CutoffDate:  util.DateOnly(cutoff.Time),
		HorizonDays: int(horizon.Int64),
		ModelRunID:  runID.Int64,
	}, nil
}
