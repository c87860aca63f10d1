package forecast

import (
	"context"
	"fmt"
	"math"
	"time"

	"CoinCast/internal/domain/models"
	"CoinCast/internal/domain/repository"
	"CoinCast/internal/forecast/nn"
	"CoinCast/pkg/logger"
	"CoinCast/pkg/util"

	"github.com/shopspring/decimal"
)

// ciZ is the z value for a 95% confidence interval.
const ciZ = 1.96

// minInferenceRows is the fewest raw price rows that produce any
// forecast; below it Predict returns an empty result without error.
const minInferenceRows = 5

// priceScale is the decimal precision of stored forecast prices.
const priceScale = 8

// welford accumulates mean and variance online.
type welford struct {
	n    int
	mean float64
	m2   float64
}

func (w *welford) add(x float64) {
	w.n++
	d := x - w.mean
	w.mean += d / float64(w.n)
	w.m2 += d * (x - w.mean)
}

// stdPop is the population standard deviation (ddof 0).
func (w *welford) stdPop() float64 {
	if w.n == 0 {
		return 0
	}
	return math.Sqrt(w.m2 / float64(w.n))
}

// PredictParams select a model run and target asset.
type PredictParams struct {
	Run         *models.ModelRun
	CryptoID    int
	HorizonDays int // 0 uses the run's horizon
	AllowUnseen bool
}

// Predictor produces and stores price forecasts from a trained run.
type Predictor struct {
	prices    repository.PriceStore
	forecasts repository.ForecastStore
	registry  *Registry
	metrics   repository.Metrics
	log       *logger.Logger
}

func NewPredictor(prices repository.PriceStore, forecasts repository.ForecastStore, registry *Registry, metrics repository.Metrics) *Predictor {
	return &Predictor{prices: prices, forecasts: forecasts, registry: registry, metrics: metrics}
}

func (pr *Predictor) SetLogger(l *logger.Logger) { pr.log = l }

// Predict runs historical one-step forecasts to calibrate the
// confidence interval, rolls the model over the future horizon,
// reconstructs prices, and replaces the stored rows for the asset.
// Every stored row carries the date one day before the point it was
// predicted for, matching the convention of the consuming tables.
func (pr *Predictor) Predict(ctx context.Context, p PredictParams) ([]models.ForecastRow, error) {
	run := p.Run
	if run == nil {
		return nil, ErrModelRunNotFound
	}
	horizon := p.HorizonDays
	if horizon <= 0 {
		horizon = run.HorizonDays
	}

	if !p.AllowUnseen && !containsInt(run.TrainingCryptoIDs, p.CryptoID) {
		return nil, fmt.Errorf("crypto %d was not part of training for run %d", p.CryptoID, run.ID)
	}

	points, err := pr.prices.FetchPrices(ctx, p.CryptoID, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("fetch prices: %w", err)
	}
	if len(points) < minInferenceRows {
		if pr.log != nil {
			pr.log.Warn("not enough price history to forecast",
				logger.Int("crypto_id", p.CryptoID),
				logger.Int("rows", len(points)))
		}
		return nil, nil
	}

	frame := BuildPriceFrame(p.CryptoID, points)
	returns := BuildReturnSeries(frame)
	cov := BuildCovariates(frame, horizon)

	nw, err := pr.registry.LoadModel(run)
	if err != nil {
		return nil, err
	}

	features := make([][]float64, returns.Len())
	for i := range features {
		row := make([]float64, 0, 1+NumCovariates)
		row = append(row, returns.Values[i])
		c, ok := cov.At(returns.Dates[i])
		if !ok {
			c = calendarRow(returns.Dates[i])
		}
		features[i] = append(row, c...)
	}

	// Historical walk-forward, one step at a time, calibrating sigma
	// from the residuals of the predicted log returns.
	in := nw.Cfg.InputChunk
	var resid welford
	histPreds := make(map[int]float64, returns.Len())
	for t := in; t < returns.Len(); t++ {
		pred, err := pr.oneStep(nw, features[t-in:t])
		if err != nil {
			return nil, fmt.Errorf("historical forecast at %s: %w",
				util.FormatDate(returns.Dates[t]), err)
		}
		histPreds[t] = pred
		resid.add(returns.Values[t] - pred)
	}
	ci := ciZ * resid.stdPop()

	futureCov := make([][]float64, horizon)
	for k := 0; k < horizon; k++ {
		date := util.AddDays(frame.LastDate(), k+1)
		c, ok := cov.At(date)
		if !ok {
			c = calendarRow(date)
		}
		futureCov[k] = c
	}
	futurePreds, err := nw.PredictSteps(features, futureCov, horizon)
	if err != nil {
		return nil, fmt.Errorf("future forecast: %w", err)
	}

	rows := pr.buildRows(run, frame, returns, histPreds, futurePreds, in, horizon, ci)

	kind := models.KindForCell(run.CellType)
	if pr.forecasts != nil {
		if err := pr.forecasts.Replace(ctx, kind, p.CryptoID, rows); err != nil {
			return nil, fmt.Errorf("store forecasts: %w", err)
		}
	}
	if pr.metrics != nil {
		pr.metrics.RecordForecastStored(string(kind), len(rows))
	}
	if pr.log != nil {
		pr.log.Info("forecast stored",
			logger.Int("crypto_id", p.CryptoID),
			logger.String("kind", string(kind)),
			logger.Int("rows", len(rows)),
			logger.Int64("run_id", run.ID))
	}
	return rows, nil
}

func (pr *Predictor) oneStep(nw *nn.Network, window [][]float64) (float64, error) {
	if nw.Cfg.Family == nn.FamilyBlockRNN {
		ys, err := nw.PredictBlock(window)
		if err != nil {
			return 0, err
		}
		return ys[0], nil
	}
	return nw.PredictOneStep(window)
}

// buildRows reconstructs prices from predicted log returns.
// Historical rows anchor on the actual price of the previous day;
// future rows chain on the previous forecast. Duplicate output dates
// keep the first row, historical before future.
func (pr *Predictor) buildRows(run *models.ModelRun, frame *PriceFrame, returns *ReturnSeries,
	histPreds map[int]float64, futurePreds []float64, inputChunk, horizon int, ci float64) []models.ForecastRow {

	rows := make([]models.ForecastRow, 0, len(histPreds)+len(futurePreds))
	seen := make(map[time.Time]bool, len(histPreds)+len(futurePreds))
	cutoff := frame.LastDate()

	appendRow := func(outDate time.Time, prev, pred float64) {
		if seen[outDate] {
			return
		}
		seen[outDate] = true
		rows = append(rows, models.ForecastRow{
			CryptoID:    frame.CryptoID,
			Date:        outDate,
			PriceHat:    decimal.NewFromFloat(prev * math.Exp(pred)).Round(priceScale),
			PriceLow:    decimal.NewFromFloat(prev * math.Exp(pred-ci)).Round(priceScale),
			PriceHigh:   decimal.NewFromFloat(prev * math.Exp(pred+ci)).Round(priceScale),
			CutoffDate:  cutoff,
			HorizonDays: horizon,
			ModelRunID:  run.ID,
		})
	}

	for t := inputChunk; t < returns.Len(); t++ {
		pred, ok := histPreds[t]
		if !ok {
			continue
		}
		pointDate := returns.Dates[t]
		outDate := util.AddDays(pointDate, -1)
		prev, ok := frame.PriceAt(outDate)
		if !ok {
			continue
		}
		appendRow(outDate, prev, pred)
	}

	prev := frame.Prices[frame.Len()-1]
	for k, pred := range futurePreds {
		pointDate := util.AddDays(frame.LastDate(), k+1)
		outDate := util.AddDays(pointDate, -1)
		next := prev * math.Exp(pred)
		appendRow(outDate, prev, pred)
		prev = next
	}
	return rows
}

func containsInt(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
