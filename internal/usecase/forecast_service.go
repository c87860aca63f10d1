package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"CoinCast/internal/domain/models"
	"CoinCast/internal/domain/repository"
	"CoinCast/internal/forecast"
	"CoinCast/internal/jobs"
	"CoinCast/pkg/config"
	"CoinCast/pkg/logger"
	"CoinCast/pkg/util"
)

// GlobalScope is the scope every cross-asset model trains under.
const GlobalScope = "global"

const trainJobKey = "train_global"

// ForecastService coordinates training and forecasting behind the
// single-flight job registry.
type ForecastService struct {
	trainer   *forecast.Trainer
	predictor *forecast.Predictor
	jobs      *jobs.Registry
	runs      repository.ModelRunStore
	forecasts repository.ForecastStore
	publisher repository.EventPublisher
	cfg       *config.Config
	log       *logger.Logger
}

func NewForecastService(
	trainer *forecast.Trainer,
	predictor *forecast.Predictor,
	jobRegistry *jobs.Registry,
	runs repository.ModelRunStore,
	forecasts repository.ForecastStore,
	publisher repository.EventPublisher,
	cfg *config.Config,
) *ForecastService {
	return &ForecastService{
		trainer:   trainer,
		predictor: predictor,
		jobs:      jobRegistry,
		runs:      runs,
		forecasts: forecasts,
		publisher: publisher,
		cfg:       cfg,
	}
}

func (s *ForecastService) SetLogger(l *logger.Logger) { s.log = l }

// TrainParamsFromRequest fills trainer params from an API request and
// the configured asset universe.
func (s *ForecastService) TrainParamsFromRequest(req models.TrainRequest) forecast.TrainParams {
	ids := make([]int, 0, len(s.cfg.Assets))
	for _, a := range s.cfg.Assets {
		ids = append(ids, a.CryptoID)
	}
	return forecast.TrainParams{
		Scope:             GlobalScope,
		Family:            models.ModelFamily(req.ModelFamily),
		Cell:              models.CellType(req.CellType),
		HorizonDays:       req.HorizonDays,
		InputChunkLength:  req.InputChunkLength,
		OutputChunkLength: req.OutputChunkLength,
		TrainingLength:    req.TrainingLength,
		HiddenDim:         req.HiddenDim,
		NRNNLayers:        req.NRNNLayers,
		NEpochs:           req.NEpochs,
		BatchSize:         req.BatchSize,
		ValSplit:          req.ValSplit,
		RandomState:       req.RandomState,
		CryptoIDs:         ids,
		WarmStartRunID:    req.WarmStartRunID,
		UpdateRunID:       req.UpdateRunID,
	}
}

// Train fits a global model and refreshes forecasts for every asset
// it trained on. Returns the run and the number of stored rows.
func (s *ForecastService) Train(ctx context.Context, p forecast.TrainParams) (*models.ModelRun, int, error) {
	run, err := s.trainer.Train(ctx, p)
	if err != nil {
		return nil, 0, err
	}

	total := 0
	for _, id := range run.TrainingCryptoIDs {
		rows, err := s.predictor.Predict(ctx, forecast.PredictParams{Run: run, CryptoID: id})
		if err != nil {
			return run, total, fmt.Errorf("forecast crypto %d: %w", id, err)
		}
		total += len(rows)
		s.publishCompleted(ctx, run, id, len(rows))
	}
	return run, total, nil
}

// RecomputeForecasts refreshes stored forecasts for one asset from
// the latest trained run of each cell type.
func (s *ForecastService) RecomputeForecasts(ctx context.Context, cryptoID int) (int, error) {
	total := 0
	found := false
	for _, cell := range []models.CellType{models.CellLSTM, models.CellGRU} {
		run, err := s.runs.FindLatestTrained(ctx, GlobalScope, cell)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return total, fmt.Errorf("find %s run: %w", cell, err)
		}
		found = true
		rows, err := s.predictor.Predict(ctx, forecast.PredictParams{Run: run, CryptoID: cryptoID})
		if err != nil {
			return total, err
		}
		total += len(rows)
		s.publishCompleted(ctx, run, cryptoID, len(rows))
	}
	if !found {
		return 0, forecast.ErrModelRunNotFound
	}
	return total, nil
}

// StartTrainingJob admits global training into the job registry.
func (s *ForecastService) StartTrainingJob(req models.TrainRequest) models.Job {
	p := s.TrainParamsFromRequest(req)
	label := fmt.Sprintf("Global %s %s model", p.Family, p.Cell)
	return s.jobs.Start(trainJobKey, "train", label, func(ctx context.Context) (int, error) {
		_, rows, err := s.Train(ctx, p)
		return rows, err
	})
}

// StartForecastJob admits a per-asset forecast refresh.
func (s *ForecastService) StartForecastJob(cryptoID int) models.Job {
	key := fmt.Sprintf("forecast_%d", cryptoID)
	label := s.assetLabel(cryptoID)
	return s.jobs.Start(key, "forecast", label, func(ctx context.Context) (int, error) {
		return s.RecomputeForecasts(ctx, cryptoID)
	})
}

// JobStatus reports a job snapshot; unknown keys are idle.
func (s *ForecastService) JobStatus(key string) models.Job {
	return s.jobs.Status(key, "", "")
}

// Forecasts reads stored forecast rows for one asset.
func (s *ForecastService) Forecasts(ctx context.Context, kind models.ModelKind, cryptoID, days int) ([]models.ForecastRow, error) {
	var since time.Time
	if days > 0 {
		since = util.AddDays(time.Now().UTC(), -days)
	}
	return s.forecasts.Fetch(ctx, kind, cryptoID, since)
}

// ForecastMeta summarizes stored forecasts for one asset.
func (s *ForecastService) ForecastMeta(ctx context.Context, kind models.ModelKind, cryptoID int) (*models.ForecastMeta, error) {
	return s.forecasts.Meta(ctx, kind, cryptoID)
}

// RunByID loads one model run row.
func (s *ForecastService) RunByID(ctx context.Context, id int64) (*models.ModelRun, error) {
	run, err := s.runs.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, forecast.ErrModelRunNotFound
	}
	return run, err
}

func (s *ForecastService) publishCompleted(ctx context.Context, run *models.ModelRun, cryptoID, rows int) {
	if s.publisher == nil {
		return
	}
	ev := models.ForecastCompletedEvent{
		CryptoID:   cryptoID,
		Kind:       models.KindForCell(run.CellType),
		ModelRunID: run.ID,
		Rows:       rows,
		At:         time.Now().UTC(),
	}
	if err := s.publisher.PublishForecastCompleted(ctx, ev); err != nil && s.log != nil {
		s.log.Warn("forecast event publish failed",
			logger.Int("crypto_id", cryptoID), logger.Error(err))
	}
}

func (s *ForecastService) assetLabel(cryptoID int) string {
	for _, a := range s.cfg.Assets {
		if a.CryptoID == cryptoID {
			return a.Symbol
		}
	}
	return fmt.Sprintf("Crypto %d", cryptoID)
}
