package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"CoinCast/internal/domain/models"
	"CoinCast/pkg/logger"
	"CoinCast/pkg/util"

	"github.com/shopspring/decimal"
)

// ClickHousePriceStore keeps daily close prices in ClickHouse.
type ClickHousePriceStore struct {
	db    *sql.DB
	table string
	log   *logger.Logger
}

func NewClickHousePriceStore(db *sql.DB, table string) *ClickHousePriceStore {
	return &ClickHousePriceStore{db: db, table: table}
}

func (s *ClickHousePriceStore) SetLogger(l *logger.Logger) { s.log = l }

// Init ensures the price table exists. ReplacingMergeTree collapses
// re-inserted days on merge, so updates are plain inserts.
func (s *ClickHousePriceStore) Init(ctx context.Context) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		crypto_id UInt32,
		date      Date,
		price     Float64
	) ENGINE = ReplacingMergeTree ORDER BY (crypto_id, date)`, s.table)
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("init price table: %w", err)
	}
	return nil
}

func (s *ClickHousePriceStore) InsertPrices(ctx context.Context, points []models.PricePoint) error {
	if len(points) == 0 {
		return nil
	}
	started := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		fmt.Sprintf("INSERT INTO %s (crypto_id, date, price) VALUES (?, ?, ?)", s.table))
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.ExecContext(ctx, uint32(p.CryptoID), util.DateOnly(p.Date), p.PriceFloat()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert price: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert: %w", err)
	}

	if s.log != nil {
		s.log.Debug("prices inserted",
			logger.Int("rows", len(points)),
			logger.Duration("took", time.Since(started)))
	}
	return nil
}

func (s *ClickHousePriceStore) FetchPrices(ctx context.Context, cryptoID int, from time.Time) ([]models.PricePoint, error) {
	query := fmt.Sprintf("SELECT date, price FROM %s FINAL WHERE crypto_id = ?", s.table)
	args := []any{uint32(cryptoID)}
	if !from.IsZero() {
		query += " AND date >= ?"
		args = append(args, util.DateOnly(from))
	}
	query += " ORDER BY date"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch prices: %w", err)
	}
	defer rows.Close()

	var out []models.PricePoint
	for rows.Next() {
		var date time.Time
		var price float64
		if err := rows.Scan(&date, &price); err != nil {
			return nil, fmt.Errorf("scan price: %w", err)
		}
		out = append(out, models.PricePoint{
			CryptoID: cryptoID,
			Date:     util.DateOnly(date),
			Price:    decimal.NewFromFloat(price),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate prices: %w", err)
	}
	return out, nil
}

func (s *ClickHousePriceStore) LatestDate(ctx context.Context, cryptoID int) (time.Time, bool, error) {
	query := fmt.Sprintf("SELECT max(date), count() FROM %s WHERE crypto_id = ?", s.table)
	var latest time.Time
	var count uint64
	if err := s.db.QueryRowContext(ctx, query, uint32(cryptoID)).Scan(&latest, &count); err != nil {
		return time.Time{}, false, fmt.Errorf("latest date: %w", err)
	}
	if count == 0 {
		return time.Time{}, false, nil
	}
	return util.DateOnly(latest), true, nil
}

func (s *ClickHousePriceStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
