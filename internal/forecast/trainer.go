package forecast

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"CoinCast/internal/domain/models"
	"CoinCast/internal/domain/repository"
	"CoinCast/internal/forecast/nn"
	"CoinCast/pkg/cache"
	"CoinCast/pkg/logger"
)

// TargetTransform is the only transform the pipeline trains on.
const TargetTransform = "log_return"

const (
	dropoutMultiLayer = 0.1
	modelLockTTL      = 15 * time.Minute
)

// TrainParams are the requested (pre-resolution) hyperparameters for
// one global training run. WarmStartRunID seeds the new network with
// weights from an existing run; UpdateRunID retrains that run row in
// place instead of inserting a fresh one. Both default to off.
type TrainParams struct {
	Scope             string
	Family            models.ModelFamily
	Cell              models.CellType
	HorizonDays       int
	InputChunkLength  int
	OutputChunkLength int
	TrainingLength    int
	HiddenDim         int
	NRNNLayers        int
	HiddenFCSizes     []int
	NEpochs           int
	BatchSize         int
	ValSplit          float64
	RandomState       int
	CryptoIDs         []int
	WarmStartRunID    int64
	UpdateRunID       int64
}

type trainAsset struct {
	id      int
	frame   *PriceFrame
	returns *ReturnSeries
	cov     *Covariates
}

// fitFunc runs one optimization pass; swappable for tests.
type fitFunc func(nw *nn.Network, train, val []nn.Sample, fc nn.FitConfig, onBest func(int, float64) error) (*nn.FitResult, error)

// Trainer fits one global model across every eligible asset.
type Trainer struct {
	prices   repository.PriceStore
	registry *Registry
	locks    cache.Service
	metrics  repository.Metrics
	fitModel fitFunc
	log      *logger.Logger
}

func NewTrainer(prices repository.PriceStore, registry *Registry, locks cache.Service, metrics repository.Metrics) *Trainer {
	return &Trainer{
		prices:   prices,
		registry: registry,
		locks:    locks,
		metrics:  metrics,
		fitModel: func(nw *nn.Network, train, val []nn.Sample, fc nn.FitConfig, onBest func(int, float64) error) (*nn.FitResult, error) {
			return nw.Fit(train, val, fc, onBest)
		},
	}
}

func (t *Trainer) SetLogger(l *logger.Logger) { t.log = l }

// Train runs the full pipeline: preprocess every asset, resolve
// sizing against the shortest survivor, fit, persist the artifact,
// and finalize the run row.
func (t *Trainer) Train(ctx context.Context, p TrainParams) (*models.ModelRun, error) {
	started := time.Now()

	assets, err := t.loadAssets(ctx, p)
	if err != nil {
		return nil, err
	}
	if len(assets) == 0 {
		return nil, ErrNoTrainableAssets
	}

	sizing, assets, err := t.resolveSizing(assets, p)
	if err != nil {
		return nil, err
	}

	key := RunKey{
		Scope:           p.Scope,
		Family:          p.Family,
		Cell:            p.Cell,
		HorizonDays:     p.HorizonDays,
		TargetTransform: TargetTransform,
	}
	// The digest is computed from the effective hyperparameters so the
	// stored record and its key always describe the same configuration.
	params := effectiveParams(p, sizing)
	var run *models.ModelRun
	if p.UpdateRunID != 0 {
		run, err = t.registry.RetrainRun(ctx, p.UpdateRunID, key, params)
	} else {
		run, err = t.registry.CreateRun(ctx, key, params)
	}
	if err != nil {
		return nil, err
	}

	if t.locks != nil {
		lockKey := "model_lock:" + run.ModelName
		ok, lockErr := t.locks.TryLock(ctx, lockKey, modelLockTTL)
		if lockErr != nil {
			t.warn("model lock unavailable, continuing", logger.Error(lockErr))
		} else if !ok {
			return nil, fmt.Errorf("model %s is being trained elsewhere", run.ModelName)
		} else {
			defer func() { _ = t.locks.Unlock(context.Background(), lockKey) }()
		}
	}

	nw, err := t.buildNetwork(p, sizing)
	if err != nil {
		t.registry.FailRun(ctx, run)
		return nil, err
	}
	if p.WarmStartRunID != 0 {
		t.warmStart(ctx, nw, p.WarmStartRunID)
	}

	res, ratio, err := t.fit(nw, run, assets, p, sizing)
	if err != nil {
		t.registry.FailRun(ctx, run)
		t.recordTraining(p, "failed")
		return nil, err
	}
	sizing.ValSplit = ratio
	params["val_split"] = ratio

	if err := nw.Save(run.ArtifactPath); err != nil {
		t.registry.FailRun(ctx, run)
		return nil, fmt.Errorf("save artifact: %w", err)
	}
	sidecar := &nn.Checkpoint{Epoch: res.Epochs, ValLoss: res.BestValLoss, Snapshot: nw.Snapshot()}
	if err := nn.SaveCheckpoint(t.registry.SidecarPath(run.ModelName), sidecar); err != nil {
		t.registry.FailRun(ctx, run)
		return nil, fmt.Errorf("save trainer state: %w", err)
	}

	ids := make([]int, 0, len(assets))
	for _, a := range assets {
		ids = append(ids, a.id)
	}
	run.TrainStartDate, run.TrainEndDate = trainWindow(assets)
	run.CutoffDate = run.TrainEndDate
	if err := t.registry.FinalizeRun(ctx, run, params, ids, ratio); err != nil {
		return nil, err
	}

	t.recordTraining(p, "trained")
	if t.metrics != nil {
		t.metrics.RecordLatency("train_global", time.Since(started).Seconds())
	}
	t.info("global model trained",
		logger.Int64("run_id", run.ID),
		logger.String("model_name", run.ModelName),
		logger.Int("assets", len(ids)),
		logger.Int("epochs", res.Epochs),
		logger.Float64("train_loss", lastOr(res.TrainLoss, 0)))
	return run, nil
}

func (t *Trainer) loadAssets(ctx context.Context, p TrainParams) ([]*trainAsset, error) {
	assets := make([]*trainAsset, 0, len(p.CryptoIDs))
	for _, id := range p.CryptoIDs {
		points, err := t.prices.FetchPrices(ctx, id, time.Time{})
		if err != nil {
			return nil, fmt.Errorf("fetch prices for crypto %d: %w", id, err)
		}
		frame := BuildPriceFrame(id, points)
		returns := BuildReturnSeries(frame)
		if returns.Len() < MinReturnPoints {
			t.warn("dropping asset with short history",
				logger.Int("crypto_id", id),
				logger.Int("return_points", returns.Len()),
				logger.Error(ErrInsufficientHistory))
			continue
		}
		assets = append(assets, &trainAsset{
			id:      id,
			frame:   frame,
			returns: returns,
			cov:     BuildCovariates(frame, p.HorizonDays),
		})
	}
	return assets, nil
}

// resolveSizing derives window geometry from the shortest surviving
// series, dropping assets whose training slice would starve and
// re-resolving until stable.
func (t *Trainer) resolveSizing(assets []*trainAsset, p TrainParams) (Sizing, []*trainAsset, error) {
	for {
		if len(assets) == 0 {
			return Sizing{}, nil, ErrNoTrainableAssets
		}
		shortest := assets[0].returns.Len()
		for _, a := range assets[1:] {
			if a.returns.Len() < shortest {
				shortest = a.returns.Len()
			}
		}

		in, out := ResolveChunkLengths(shortest, p.InputChunkLength, p.OutputChunkLength, p.Family)
		trainingLen := 0
		if p.Family == models.FamilyRNN {
			trainingLen = ResolveTrainingLength(shortest, in, p.TrainingLength)
		}
		minReq := MinRequiredLength(p.Family, in, out, trainingLen)
		ratio := ResolveValSplit(shortest, p.ValSplit, minReq)

		kept := assets[:0]
		dropped := false
		for _, a := range assets {
			trainLen, _ := SplitLengths(a.returns.Len(), ratio)
			if trainLen < minTrainSlice {
				t.warn("dropping asset whose training slice is too short",
					logger.Int("crypto_id", a.id),
					logger.Int("train_len", trainLen))
				dropped = true
				continue
			}
			kept = append(kept, a)
		}
		assets = kept
		if !dropped {
			return Sizing{
				InputChunk:     in,
				OutputChunk:    out,
				TrainingLength: trainingLen,
				MinRequired:    minReq,
				ValSplit:       ratio,
			}, assets, nil
		}
	}
}

func (t *Trainer) buildNetwork(p TrainParams, s Sizing) (*nn.Network, error) {
	dropout := 0.0
	if p.NRNNLayers > 1 {
		dropout = dropoutMultiLayer
	}
	return nn.New(nn.Config{
		Family:         string(p.Family),
		Cell:           string(p.Cell),
		InputSize:      1 + NumCovariates,
		HiddenDim:      p.HiddenDim,
		NumLayers:      p.NRNNLayers,
		InputChunk:     s.InputChunk,
		OutputChunk:    s.OutputChunk,
		TrainingLength: s.TrainingLength,
		HiddenFCSizes:  p.HiddenFCSizes,
		Dropout:        dropout,
		Seed:           int64(p.RandomState),
	})
}

// warmStart loads weights from the artifact of an explicitly named
// run. A missing run, a missing artifact, or a shape change logs and
// continues cold.
func (t *Trainer) warmStart(ctx context.Context, nw *nn.Network, runID int64) {
	src, err := t.registry.Run(ctx, runID)
	if err != nil {
		t.warn("warm-start run not found, training cold",
			logger.Int64("warm_start_run_id", runID), logger.Error(err))
		return
	}
	old, err := nn.Load(src.ArtifactPath)
	if err != nil {
		if os.IsNotExist(err) {
			t.warn("warm-start artifact missing, training cold",
				logger.String("model_name", src.ModelName))
		} else {
			t.warn("could not read warm-start artifact, training cold", logger.Error(err))
		}
		return
	}
	if err := nw.LoadWeightsFrom(old); err != nil {
		t.warn("warm-start weights incompatible, training cold", logger.Error(err))
		return
	}
	t.info("warm start from run",
		logger.Int64("warm_start_run_id", runID),
		logger.String("model_name", src.ModelName))
}

// trainWindow reports the date span the surviving assets cover.
func trainWindow(assets []*trainAsset) (start, end time.Time) {
	for _, a := range assets {
		if a.frame.Len() == 0 {
			continue
		}
		first, last := a.frame.Dates[0], a.frame.LastDate()
		if start.IsZero() || first.Before(start) {
			start = first
		}
		if last.After(end) {
			end = last
		}
	}
	return start, end
}

// fit builds samples and runs the optimization loop, retrying once
// without validation when the validation set is rejected as unusable.
func (t *Trainer) fit(nw *nn.Network, run *models.ModelRun, assets []*trainAsset, p TrainParams, s Sizing) (*nn.FitResult, float64, error) {
	fc := nn.DefaultFitConfig()
	fc.Epochs = p.NEpochs
	fc.BatchSize = p.BatchSize

	ratio := s.ValSplit
	train, val := t.buildSamples(assets, p, s, ratio)
	if ratio > 0 && len(val) == 0 {
		t.warn("validation slices produced no usable windows, fitting without validation")
		ratio = 0
		train, val = t.buildSamples(assets, p, s, 0)
	}

	onBest := t.bestCheckpointSaver(run, nw)
	res, err := t.fitModel(nw, train, val, fc, onBest)
	if err != nil && errors.Is(err, nn.ErrShapeMismatch) && ratio > 0 {
		t.warn("fit rejected validation data, retrying without validation", logger.Error(err))
		ratio = 0
		train, _ = t.buildSamples(assets, p, s, 0)
		res, err = t.fitModel(nw, train, nil, fc, nil)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("fit: %w", err)
	}
	return res, ratio, nil
}

func (t *Trainer) buildSamples(assets []*trainAsset, p TrainParams, s Sizing, ratio float64) ([]nn.Sample, []nn.Sample) {
	var train, val []nn.Sample
	for _, a := range assets {
		trainLen, _ := SplitLengths(a.returns.Len(), ratio)
		if p.Family == models.FamilyRNN {
			train = append(train, rnnWindows(a, 0, trainLen, s.TrainingLength)...)
			val = append(val, rnnWindows(a, trainLen, a.returns.Len(), s.TrainingLength)...)
		} else {
			train = append(train, blockWindows(a, 0, trainLen, s.InputChunk, s.OutputChunk)...)
			val = append(val, blockWindows(a, trainLen, a.returns.Len(), s.InputChunk, s.OutputChunk)...)
		}
	}
	return train, val
}

func featureRow(a *trainAsset, i int) []float64 {
	row := make([]float64, 0, 1+NumCovariates)
	row = append(row, a.returns.Values[i])
	cov, ok := a.cov.At(a.returns.Dates[i])
	if !ok {
		cov = calendarRow(a.returns.Dates[i])
	}
	return append(row, cov...)
}

// rnnWindows emits teacher-forced windows: inputs over L steps,
// targets shifted one step ahead.
func rnnWindows(a *trainAsset, lo, hi, L int) []nn.Sample {
	var out []nn.Sample
	for start := lo; start+L < hi; start++ {
		inputs := make([][]float64, 0, L)
		targets := make([]float64, 0, L)
		for k := 0; k < L; k++ {
			inputs = append(inputs, featureRow(a, start+k))
			targets = append(targets, a.returns.Values[start+k+1])
		}
		out = append(out, nn.Sample{Inputs: inputs, Targets: targets})
	}
	return out
}

func blockWindows(a *trainAsset, lo, hi, in, outLen int) []nn.Sample {
	var out []nn.Sample
	for start := lo; start+in+outLen <= hi; start++ {
		inputs := make([][]float64, 0, in)
		for k := 0; k < in; k++ {
			inputs = append(inputs, featureRow(a, start+k))
		}
		targets := make([]float64, 0, outLen)
		for k := 0; k < outLen; k++ {
			targets = append(targets, a.returns.Values[start+in+k])
		}
		out = append(out, nn.Sample{Inputs: inputs, Targets: targets})
	}
	return out
}

// bestCheckpointSaver keeps a single best-epoch checkpoint per model.
func (t *Trainer) bestCheckpointSaver(run *models.ModelRun, nw *nn.Network) func(epoch int, valLoss float64) error {
	dir := t.registry.CheckpointDir(run.ModelName)
	return func(epoch int, valLoss float64) error {
		if entries, err := os.ReadDir(dir); err == nil {
			for _, e := range entries {
				if strings.HasPrefix(e.Name(), "best-") {
					_ = os.Remove(filepath.Join(dir, e.Name()))
				}
			}
		}
		path := filepath.Join(dir, fmt.Sprintf("best-epoch=%d.ckpt", epoch))
		return nn.SaveCheckpoint(path, &nn.Checkpoint{Epoch: epoch, ValLoss: valLoss, Snapshot: nw.Snapshot()})
	}
}

func requestedParams(p TrainParams) map[string]any {
	m := map[string]any{
		"input_chunk_length":  p.InputChunkLength,
		"output_chunk_length": p.OutputChunkLength,
		"hidden_dim":          p.HiddenDim,
		"n_rnn_layers":        p.NRNNLayers,
		"n_epochs":            p.NEpochs,
		"batch_size":          p.BatchSize,
		"val_split":           p.ValSplit,
		"random_state":        p.RandomState,
	}
	if p.Family == models.FamilyRNN {
		m["training_length"] = p.TrainingLength
	}
	if len(p.HiddenFCSizes) > 0 {
		m["hidden_fc_sizes"] = p.HiddenFCSizes
	}
	return m
}

func effectiveParams(p TrainParams, s Sizing) map[string]any {
	m := requestedParams(p)
	m["input_chunk_length"] = s.InputChunk
	m["output_chunk_length"] = s.OutputChunk
	m["val_split"] = s.ValSplit
	m["save_checkpoints"] = true
	if p.Family == models.FamilyRNN {
		m["training_length"] = s.TrainingLength
	}
	if p.NRNNLayers > 1 {
		m["dropout"] = dropoutMultiLayer
	}
	return m
}

func (t *Trainer) recordTraining(p TrainParams, status string) {
	if t.metrics != nil {
		t.metrics.RecordTrainingRun(string(p.Family), string(p.Cell), status)
	}
}

func (t *Trainer) info(msg string, fields ...logger.Field) {
	if t.log != nil {
		t.log.Info(msg, fields...)
	}
}

func (t *Trainer) warn(msg string, fields ...logger.Field) {
	if t.log != nil {
		t.log.Warn(msg, fields...)
	}
}

func lastOr(xs []float64, def float64) float64 {
	if len(xs) == 0 {
		return def
	}
	return xs[len(xs)-1]
}
