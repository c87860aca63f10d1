package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"CoinCast/internal/domain/models"
	"CoinCast/internal/domain/repository"
	"CoinCast/pkg/cache"
	"CoinCast/pkg/logger"
)

// CachedPriceStore decorates a PriceStore with a read cache for full
// price histories. Inserts invalidate the asset's entry.
type CachedPriceStore struct {
	inner repository.PriceStore
	cache cache.Service
	ttl   time.Duration
	log   *logger.Logger
}

func NewCachedPriceStore(inner repository.PriceStore, c cache.Service, ttl time.Duration) *CachedPriceStore {
	return &CachedPriceStore{inner: inner, cache: c, ttl: ttl}
}

func (s *CachedPriceStore) SetLogger(l *logger.Logger) { s.log = l }

func (s *CachedPriceStore) Init(ctx context.Context) error {
	return s.inner.Init(ctx)
}

func priceSeriesKey(cryptoID int) string {
	return cache.GenerateKeyWithParams("prices:series", cryptoID)
}

func (s *CachedPriceStore) InsertPrices(ctx context.Context, points []models.PricePoint) error {
	if err := s.inner.InsertPrices(ctx, points); err != nil {
		return err
	}
	touched := make(map[int]bool)
	for _, p := range points {
		touched[p.CryptoID] = true
	}
	for id := range touched {
		if err := s.cache.Delete(ctx, priceSeriesKey(id)); err != nil && s.log != nil {
			s.log.Warn("price cache invalidation failed",
				logger.Int("crypto_id", id), logger.Error(err))
		}
	}
	return nil
}

func (s *CachedPriceStore) FetchPrices(ctx context.Context, cryptoID int, from time.Time) ([]models.PricePoint, error) {
	// Only full-history reads are cached; windowed reads pass through.
	if !from.IsZero() {
		return s.inner.FetchPrices(ctx, cryptoID, from)
	}

	key := priceSeriesKey(cryptoID)
	var cached []models.PricePoint
	err := s.cache.Get(ctx, key, &cached)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) && s.log != nil {
		s.log.Warn("price cache read failed", logger.Error(err))
	}

	points, err := s.inner.FetchPrices(ctx, cryptoID, from)
	if err != nil {
		return nil, err
	}
	if setErr := s.cache.Set(ctx, key, points, s.ttl); setErr != nil && s.log != nil {
		s.log.Warn("price cache write failed", logger.Error(setErr))
	}
	return points, nil
}

func (s *CachedPriceStore) LatestDate(ctx context.Context, cryptoID int) (time.Time, bool, error) {
	return s.inner.LatestDate(ctx, cryptoID)
}

func (s *CachedPriceStore) Health(ctx context.Context) error {
	if err := s.inner.Health(ctx); err != nil {
		return fmt.Errorf("price store: %w", err)
	}
	return nil
}
