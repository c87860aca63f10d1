package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"CoinCast/internal/domain/models"
	"CoinCast/pkg/logger"
)

// PriceEventsHandler reacts to price update events by admitting a
// forecast refresh for the touched asset.
type PriceEventsHandler struct {
	topic string
	svc   *ForecastService
	log   *logger.Logger
}

func NewPriceEventsHandler(topic string, svc *ForecastService) *PriceEventsHandler {
	return &PriceEventsHandler{topic: topic, svc: svc}
}

func (h *PriceEventsHandler) SetLogger(l *logger.Logger) { h.log = l }

func (h *PriceEventsHandler) Topic() string { return h.topic }

func (h *PriceEventsHandler) Handle(ctx context.Context, payload []byte) error {
	var ev models.PricesUpdatedEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("decode prices event: %w", err)
	}
	if ev.NewPoints == 0 {
		return nil
	}

	job := h.svc.StartForecastJob(ev.CryptoID)
	if h.log != nil {
		h.log.Info("forecast refresh admitted from price event",
			logger.Int("crypto_id", ev.CryptoID),
			logger.String("state", string(job.State)))
	}
	// A busy job means a refresh is already in flight for this asset;
	// the event is considered handled either way.
	return nil
}
