package nn

import (
	"errors"
	"math"
	"testing"
)

func rnnConfig() Config {
	return Config{
		Family:     FamilyRNN,
		Cell:       CellLSTM,
		InputSize:  2,
		HiddenDim:  8,
		NumLayers:  1,
		InputChunk: 4,
		Seed:       42,
	}
}

func blockConfig() Config {
	return Config{
		Family:      FamilyBlockRNN,
		Cell:        CellGRU,
		InputSize:   2,
		HiddenDim:   8,
		NumLayers:   1,
		InputChunk:  4,
		OutputChunk: 2,
		Seed:        42,
	}
}

// sineSamples builds teacher-forced windows over a noiseless sine, an
// easy target the loop should make progress on quickly.
func sineSamples(n, window int) []Sample {
	series := make([]float64, n)
	for i := range series {
		series[i] = 0.5 * math.Sin(float64(i)/3)
	}
	var out []Sample
	for start := 0; start+window < n; start++ {
		inputs := make([][]float64, window)
		targets := make([]float64, window)
		for k := 0; k < window; k++ {
			inputs[k] = []float64{series[start+k], 1}
			targets[k] = series[start+k+1]
		}
		out = append(out, Sample{Inputs: inputs, Targets: targets})
	}
	return out
}

func TestNewRejectsBadConfig(t *testing.T) {
	if _, err := New(Config{Family: "cnn", Cell: CellLSTM, InputSize: 1, HiddenDim: 4, NumLayers: 1}); err == nil {
		t.Fatalf("expected error for unknown family")
	}
	if _, err := New(Config{Family: FamilyRNN, Cell: "elman", InputSize: 1, HiddenDim: 4, NumLayers: 1}); err == nil {
		t.Fatalf("expected error for unknown cell")
	}
	cfg := blockConfig()
	cfg.OutputChunk = 0
	if _, err := New(cfg); err == nil {
		t.Fatalf("expected error for missing output chunk")
	}
}

func TestPredictOneStepDeterministicForSeed(t *testing.T) {
	window := [][]float64{{0.1, 1}, {0.2, 1}, {-0.1, 1}, {0.05, 1}}

	a, err := New(rnnConfig())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	b, err := New(rnnConfig())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ya, err := a.PredictOneStep(window)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	yb, err := b.PredictOneStep(window)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if ya != yb {
		t.Fatalf("same seed produced %v and %v", ya, yb)
	}
}

func TestPredictRejectsWrongInputWidth(t *testing.T) {
	nw, err := New(rnnConfig())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_, err = nw.PredictOneStep([][]float64{{0.1}})
	if !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected shape mismatch, got %v", err)
	}
}

func TestFitReducesTrainLoss(t *testing.T) {
	nw, err := New(rnnConfig())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	fc := DefaultFitConfig()
	fc.Epochs = 30
	fc.BatchSize = 8

	res, err := nw.Fit(sineSamples(60, 10), nil, fc, nil)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	if len(res.TrainLoss) == 0 {
		t.Fatalf("no epochs recorded")
	}
	first, last := res.TrainLoss[0], res.TrainLoss[len(res.TrainLoss)-1]
	if last >= first {
		t.Fatalf("train loss did not improve: first=%v last=%v", first, last)
	}
}

func TestFitRejectsBadValidationUpfront(t *testing.T) {
	nw, err := New(blockConfig())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	train := []Sample{{
		Inputs:  [][]float64{{0, 1}, {0.1, 1}, {0.2, 1}, {0.1, 1}},
		Targets: []float64{0.1, 0.2},
	}}
	val := []Sample{{
		Inputs:  [][]float64{{0, 1}},
		Targets: []float64{0.1},
	}}

	before, err := nw.PredictBlock(train[0].Inputs)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}

	fc := DefaultFitConfig()
	fc.Epochs = 5
	_, err = nw.Fit(train, val, fc, nil)
	if !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected shape mismatch, got %v", err)
	}

	// Weights must not have moved.
	after, err := nw.PredictBlock(train[0].Inputs)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("weights changed despite rejected validation set")
		}
	}
}

func TestFitEmptyTrainingSet(t *testing.T) {
	nw, err := New(rnnConfig())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := nw.Fit(nil, nil, DefaultFitConfig(), nil); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected shape mismatch, got %v", err)
	}
}

func TestFitFiresOnBest(t *testing.T) {
	nw, err := New(rnnConfig())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	samples := sineSamples(60, 10)
	fc := DefaultFitConfig()
	fc.Epochs = 10
	fc.BatchSize = 8

	calls := 0
	lastEpoch := 0
	res, err := nw.Fit(samples[:30], samples[30:], fc, func(epoch int, valLoss float64) error {
		calls++
		if epoch <= lastEpoch {
			t.Fatalf("onBest epochs not increasing: %d then %d", lastEpoch, epoch)
		}
		lastEpoch = epoch
		return nil
	})
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	if calls == 0 {
		t.Fatalf("onBest never fired")
	}
	if res.BestEpoch != lastEpoch {
		t.Fatalf("best epoch %d, last onBest %d", res.BestEpoch, lastEpoch)
	}
}

func TestPredictStepsLengthAndDeterminism(t *testing.T) {
	history := [][]float64{{0.1, 1}, {0.2, 1}, {-0.1, 1}, {0.05, 1}, {0, 1}}
	futureCov := [][]float64{{1}, {1}, {1}, {1}, {1}, {1}, {1}}

	for _, cfg := range []Config{rnnConfig(), blockConfig()} {
		nw, err := New(cfg)
		if err != nil {
			t.Fatalf("new: %v", err)
		}
		got, err := nw.PredictSteps(history, futureCov, 7)
		if err != nil {
			t.Fatalf("%s: predict steps: %v", cfg.Family, err)
		}
		if len(got) != 7 {
			t.Fatalf("%s: expected 7 predictions, got %d", cfg.Family, len(got))
		}
		again, err := nw.PredictSteps(history, futureCov, 7)
		if err != nil {
			t.Fatalf("%s: predict steps: %v", cfg.Family, err)
		}
		for i := range got {
			if got[i] != again[i] {
				t.Fatalf("%s: predictions not deterministic at %d", cfg.Family, i)
			}
		}
	}
}

func TestPredictStepsNeedsCovariates(t *testing.T) {
	nw, err := New(rnnConfig())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	history := [][]float64{{0.1, 1}, {0.2, 1}}
	if _, err := nw.PredictSteps(history, [][]float64{{1}}, 3); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected shape mismatch, got %v", err)
	}
}

func TestPredictBlockOutputChunk(t *testing.T) {
	nw, err := New(blockConfig())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	window := [][]float64{{0, 1}, {0.1, 1}, {0.2, 1}, {0.1, 1}}
	ys, err := nw.PredictBlock(window)
	if err != nil {
		t.Fatalf("predict block: %v", err)
	}
	if len(ys) != 2 {
		t.Fatalf("expected 2 outputs, got %d", len(ys))
	}
	if _, err := nw.PredictBlock(window[:3]); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected shape mismatch for short window, got %v", err)
	}
}
