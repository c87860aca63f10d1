package repository

import (
	"context"
	"errors"
	"time"

	"CoinCast/internal/domain/models"
)

// ErrNotFound is returned by stores when no row matches a lookup.
var ErrNotFound = errors.New("repository: not found")

// PriceStore persists and serves daily close prices.
type PriceStore interface {
	Init(ctx context.Context) error // ensure tables, health checks
	InsertPrices(ctx context.Context, points []models.PricePoint) error
	// FetchPrices returns rows for one asset ordered by date ascending.
	// A zero from fetches the full history.
	FetchPrices(ctx context.Context, cryptoID int, from time.Time) ([]models.PricePoint, error)
	LatestDate(ctx context.Context, cryptoID int) (time.Time, bool, error)
	Health(ctx context.Context) error
}

// ModelRunStore persists model run rows.
type ModelRunStore interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, run *models.ModelRun) error
	Update(ctx context.Context, run *models.ModelRun) error
	GetByID(ctx context.Context, id int64) (*models.ModelRun, error)
	FindByDigest(ctx context.Context, scope, digest string) (*models.ModelRun, error)
	FindLatestTrained(ctx context.Context, scope string, cell models.CellType) (*models.ModelRun, error)
}

// ForecastStore persists forecast rows per model kind.
type ForecastStore interface {
	Init(ctx context.Context) error
	// Replace deletes every stored row for (kind, cryptoID) and inserts
	// the given rows in a single transaction.
	Replace(ctx context.Context, kind models.ModelKind, cryptoID int, rows []models.ForecastRow) error
	Fetch(ctx context.Context, kind models.ModelKind, cryptoID int, since time.Time) ([]models.ForecastRow, error)
	Meta(ctx context.Context, kind models.ModelKind, cryptoID int) (*models.ForecastMeta, error)
}

// EventPublisher emits domain events to the message bus.
type EventPublisher interface {
	PublishPricesUpdated(ctx context.Context, ev models.PricesUpdatedEvent) error
	PublishForecastCompleted(ctx context.Context, ev models.ForecastCompletedEvent) error
	Close() error
}

// PriceSource fetches daily market history from an external provider.
type PriceSource interface {
	DailyHistory(ctx context.Context, providerID string, days int) ([]models.PricePoint, error)
}

// Metrics records operational measurements.
type Metrics interface {
	RecordForecastStored(kind string, rows int)
	RecordTrainingRun(family, cell, status string)
	RecordJob(state string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
	RecordError(kind string)
}
