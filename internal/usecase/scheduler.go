package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"CoinCast/internal/forecast"
	"CoinCast/pkg/config"
	"CoinCast/pkg/logger"
)

const refreshJobKey = "scheduled_refresh"

// Scheduler periodically refreshes prices and recomputes forecasts.
// The whole cycle runs as one job so API-triggered work and scheduled
// work share the same single-flight guard.
type Scheduler struct {
	updater *PriceUpdater
	svc     *ForecastService
	assets  []config.Asset

	interval time.Duration
	log      *logger.Logger

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func NewScheduler(updater *PriceUpdater, svc *ForecastService, cfg *config.Config) *Scheduler {
	interval := cfg.Scheduler.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{
		updater:  updater,
		svc:      svc,
		assets:   cfg.Assets,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

func (s *Scheduler) SetLogger(l *logger.Logger) { s.log = l }

func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.loop()
	if s.log != nil {
		s.log.Info("scheduler started", logger.Duration("interval", s.interval))
	}
}

func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stop) })
	s.wg.Wait()
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// First cycle runs right away so a fresh deploy is not stale for
	// a full interval.
	s.runCycle()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.runCycle()
		}
	}
}

func (s *Scheduler) runCycle() {
	job := s.svc.jobs.Start(refreshJobKey, "refresh", "Scheduled refresh",
		func(ctx context.Context) (int, error) {
			added, err := s.updater.UpdateAll(ctx, s.assets)
			if err != nil {
				return added, err
			}
			total := 0
			for _, asset := range s.assets {
				rows, err := s.svc.RecomputeForecasts(ctx, asset.CryptoID)
				if errors.Is(err, forecast.ErrModelRunNotFound) {
					// Nothing trained yet, prices alone are still useful.
					return added, nil
				}
				if err != nil {
					return total, err
				}
				total += rows
			}
			return total, nil
		})
	if s.log != nil {
		s.log.Debug("refresh cycle admitted", logger.String("state", string(job.State)))
	}
}
