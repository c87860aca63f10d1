package usecase

import (
	"context"
	"fmt"
	"time"

	"CoinCast/internal/domain/models"
	"CoinCast/internal/domain/repository"
	"CoinCast/pkg/config"
	"CoinCast/pkg/logger"
	"CoinCast/pkg/util"
)

// PriceUpdater pulls daily history from the external price provider
// and appends days the price store has not seen yet.
type PriceUpdater struct {
	source    repository.PriceSource
	prices    repository.PriceStore
	publisher repository.EventPublisher
	metrics   repository.Metrics
	lookback  int
	log       *logger.Logger
}

func NewPriceUpdater(
	source repository.PriceSource,
	prices repository.PriceStore,
	publisher repository.EventPublisher,
	metrics repository.Metrics,
	lookbackDays int,
) *PriceUpdater {
	if lookbackDays <= 0 {
		lookbackDays = 365
	}
	return &PriceUpdater{
		source:    source,
		prices:    prices,
		publisher: publisher,
		metrics:   metrics,
		lookback:  lookbackDays,
	}
}

func (u *PriceUpdater) SetLogger(l *logger.Logger) { u.log = l }

// UpdateAsset fetches history for one asset and stores the days newer
// than the latest stored date. Returns the number of rows added.
func (u *PriceUpdater) UpdateAsset(ctx context.Context, asset config.Asset) (int, error) {
	started := time.Now()

	points, err := u.source.DailyHistory(ctx, asset.CoinGeckoID, u.lookback)
	if err != nil {
		u.recordError("price_fetch")
		return 0, fmt.Errorf("fetch %s history: %w", asset.Symbol, err)
	}

	latest, have, err := u.prices.LatestDate(ctx, asset.CryptoID)
	if err != nil {
		return 0, fmt.Errorf("latest date for %s: %w", asset.Symbol, err)
	}

	fresh := make([]models.PricePoint, 0, len(points))
	for _, p := range points {
		if have && !p.Date.After(latest) {
			continue
		}
		p.CryptoID = asset.CryptoID
		fresh = append(fresh, p)
	}
	if len(fresh) == 0 {
		if u.log != nil {
			u.log.Debug("prices already current", logger.String("symbol", asset.Symbol))
		}
		return 0, nil
	}

	if err := u.prices.InsertPrices(ctx, fresh); err != nil {
		return 0, fmt.Errorf("store %s prices: %w", asset.Symbol, err)
	}

	last := fresh[len(fresh)-1]
	if u.metrics != nil {
		u.metrics.RecordLastPrice(asset.Symbol, last.Price.InexactFloat64())
		u.metrics.RecordLatency("price_update", time.Since(started).Seconds())
	}
	if u.publisher != nil {
		ev := models.PricesUpdatedEvent{
			CryptoID:  asset.CryptoID,
			Symbol:    asset.Symbol,
			NewPoints: len(fresh),
			LatestDay: util.FormatDate(last.Date),
			At:        time.Now().UTC(),
		}
		if err := u.publisher.PublishPricesUpdated(ctx, ev); err != nil && u.log != nil {
			u.log.Warn("price event publish failed",
				logger.String("symbol", asset.Symbol), logger.Error(err))
		}
	}
	if u.log != nil {
		u.log.Info("prices updated",
			logger.String("symbol", asset.Symbol),
			logger.Int("new_points", len(fresh)),
			logger.String("latest_day", util.FormatDate(last.Date)))
	}
	return len(fresh), nil
}

// UpdateAll runs UpdateAsset over the whole universe. One failing
// asset does not stop the others.
func (u *PriceUpdater) UpdateAll(ctx context.Context, assets []config.Asset) (int, error) {
	total := 0
	var firstErr error
	for _, asset := range assets {
		n, err := u.UpdateAsset(ctx, asset)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			if u.log != nil {
				u.log.Error("asset update failed",
					logger.String("symbol", asset.Symbol), logger.Error(err))
			}
			continue
		}
		total += n
	}
	return total, firstErr
}

func (u *PriceUpdater) recordError(kind string) {
	if u.metrics != nil {
		u.metrics.RecordError(kind)
	}
}
