package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"CoinCast/internal/domain/models"
	"CoinCast/pkg/config"
	"CoinCast/pkg/util"

	"github.com/shopspring/decimal"
)

type fakeSource struct {
	history map[string][]models.PricePoint
	err     error
}

func (s *fakeSource) DailyHistory(_ context.Context, providerID string, _ int) ([]models.PricePoint, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.history[providerID], nil
}

type fakePrices struct {
	mu       sync.Mutex
	latest   map[int]time.Time
	inserted []models.PricePoint
}

func (s *fakePrices) Init(context.Context) error { return nil }

func (s *fakePrices) InsertPrices(_ context.Context, points []models.PricePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserted = append(s.inserted, points...)
	return nil
}

func (s *fakePrices) FetchPrices(context.Context, int, time.Time) ([]models.PricePoint, error) {
	return nil, nil
}

func (s *fakePrices) LatestDate(_ context.Context, cryptoID int) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.latest[cryptoID]
	return d, ok, nil
}

func (s *fakePrices) Health(context.Context) error { return nil }

type fakePublisher struct {
	mu     sync.Mutex
	prices []models.PricesUpdatedEvent
}

func (p *fakePublisher) PublishPricesUpdated(_ context.Context, ev models.PricesUpdatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices = append(p.prices, ev)
	return nil
}

func (p *fakePublisher) PublishForecastCompleted(context.Context, models.ForecastCompletedEvent) error {
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func histPoint(date string, price float64) models.PricePoint {
	d, _ := util.ParseDate(date)
	return models.PricePoint{Date: d, Price: decimal.NewFromFloat(price)}
}

func btcAsset() config.Asset {
	return config.Asset{CryptoID: 1, Symbol: "BTC", CoinGeckoID: "bitcoin"}
}

func TestUpdateAssetStoresOnlyNewDays(t *testing.T) {
	source := &fakeSource{history: map[string][]models.PricePoint{
		"bitcoin": {
			histPoint("2024-01-01", 100),
			histPoint("2024-01-02", 110),
			histPoint("2024-01-03", 120),
		},
	}}
	prices := &fakePrices{latest: map[int]time.Time{1: mustDay("2024-01-01")}}
	pub := &fakePublisher{}

	u := NewPriceUpdater(source, prices, pub, nil, 30)
	n, err := u.UpdateAsset(context.Background(), btcAsset())
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 new points, got %d", n)
	}
	for _, p := range prices.inserted {
		if p.CryptoID != 1 {
			t.Fatalf("inserted point missing crypto id: %+v", p)
		}
		if !p.Date.After(mustDay("2024-01-01")) {
			t.Fatalf("stale point stored: %v", p.Date)
		}
	}
	if len(pub.prices) != 1 {
		t.Fatalf("expected one event, got %d", len(pub.prices))
	}
	ev := pub.prices[0]
	if ev.CryptoID != 1 || ev.NewPoints != 2 || ev.LatestDay != "2024-01-03" {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestUpdateAssetNoNewData(t *testing.T) {
	source := &fakeSource{history: map[string][]models.PricePoint{
		"bitcoin": {histPoint("2024-01-01", 100)},
	}}
	prices := &fakePrices{latest: map[int]time.Time{1: mustDay("2024-01-01")}}
	pub := &fakePublisher{}

	u := NewPriceUpdater(source, prices, pub, nil, 30)
	n, err := u.UpdateAsset(context.Background(), btcAsset())
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 new points, got %d", n)
	}
	if len(prices.inserted) != 0 || len(pub.prices) != 0 {
		t.Fatalf("no-op update touched store or bus")
	}
}

func TestUpdateAssetFirstSync(t *testing.T) {
	source := &fakeSource{history: map[string][]models.PricePoint{
		"bitcoin": {histPoint("2024-01-01", 100), histPoint("2024-01-02", 110)},
	}}
	prices := &fakePrices{latest: map[int]time.Time{}}

	u := NewPriceUpdater(source, prices, &fakePublisher{}, nil, 30)
	n, err := u.UpdateAsset(context.Background(), btcAsset())
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected full history stored, got %d", n)
	}
}

func TestUpdateAllContinuesPastFailures(t *testing.T) {
	source := &fakeSource{err: errors.New("provider down")}
	prices := &fakePrices{latest: map[int]time.Time{}}

	u := NewPriceUpdater(source, prices, &fakePublisher{}, nil, 30)
	n, err := u.UpdateAll(context.Background(), []config.Asset{
		btcAsset(),
		{CryptoID: 2, Symbol: "ETH", CoinGeckoID: "ethereum"},
	})
	if err == nil {
		t.Fatalf("expected first error surfaced")
	}
	if n != 0 {
		t.Fatalf("expected 0 points, got %d", n)
	}
}

func mustDay(s string) time.Time {
	d, err := util.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}
