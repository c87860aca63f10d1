package nn

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

// ErrShapeMismatch reports input data whose dimensions do not fit the
// network. A fit that rejects its validation set with this error can
// be retried without validation.
var ErrShapeMismatch = errors.New("nn: shape mismatch")

// Families and cells.
const (
	FamilyRNN      = "rnn"
	FamilyBlockRNN = "block_rnn"
	CellLSTM       = "LSTM"
	CellGRU        = "GRU"
)

// Config describes a recurrent forecast network. The rnn family emits
// one step per input step (teacher forcing over TrainingLength
// windows); the block family encodes InputChunk steps and emits
// OutputChunk values through a fully connected head.
type Config struct {
	Family         string  `json:"family"`
	Cell           string  `json:"cell"`
	InputSize      int     `json:"input_size"`
	HiddenDim      int     `json:"hidden_dim"`
	NumLayers      int     `json:"num_layers"`
	InputChunk     int     `json:"input_chunk"`
	OutputChunk    int     `json:"output_chunk"`
	TrainingLength int     `json:"training_length"`
	HiddenFCSizes  []int   `json:"hidden_fc_sizes,omitempty"`
	Dropout        float64 `json:"dropout"`
	Seed           int64   `json:"seed"`
}

func (c Config) validate() error {
	if c.Family != FamilyRNN && c.Family != FamilyBlockRNN {
		return fmt.Errorf("nn: unknown family %q", c.Family)
	}
	if c.Cell != CellLSTM && c.Cell != CellGRU {
		return fmt.Errorf("nn: unknown cell %q", c.Cell)
	}
	if c.InputSize < 1 || c.HiddenDim < 1 || c.NumLayers < 1 {
		return fmt.Errorf("nn: invalid dimensions %d/%d/%d", c.InputSize, c.HiddenDim, c.NumLayers)
	}
	if c.Family == FamilyBlockRNN && (c.InputChunk < 1 || c.OutputChunk < 1) {
		return fmt.Errorf("nn: invalid chunks %d/%d", c.InputChunk, c.OutputChunk)
	}
	return nil
}

// Network is a stacked recurrent forecaster.
type Network struct {
	Cfg Config

	cells []recurrentCell
	fcs   []*linear
	out   *linear
	rng   *rand.Rand
	prms  []*Param
}

// New builds a freshly initialized network.
func New(cfg Config) (*Network, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	nw := &Network{
		Cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}

	for l := 0; l < cfg.NumLayers; l++ {
		in := cfg.HiddenDim
		if l == 0 {
			in = cfg.InputSize
		}
		name := fmt.Sprintf("cell%d", l)
		if cfg.Cell == CellGRU {
			nw.cells = append(nw.cells, newGRUCell(name, in, cfg.HiddenDim, nw.rng))
		} else {
			nw.cells = append(nw.cells, newLSTMCell(name, in, cfg.HiddenDim, nw.rng))
		}
	}

	if cfg.Family == FamilyBlockRNN {
		in := cfg.HiddenDim
		for i, sz := range cfg.HiddenFCSizes {
			nw.fcs = append(nw.fcs, newLinear(fmt.Sprintf("fc%d", i), in, sz, nw.rng))
			in = sz
		}
		nw.out = newLinear("out", in, cfg.OutputChunk, nw.rng)
	} else {
		nw.out = newLinear("out", cfg.HiddenDim, 1, nw.rng)
	}

	for _, c := range nw.cells {
		nw.prms = append(nw.prms, c.params()...)
	}
	for _, fc := range nw.fcs {
		nw.prms = append(nw.prms, fc.params()...)
	}
	nw.prms = append(nw.prms, nw.out.params()...)
	return nw, nil
}

// Params exposes learnable parameters, mainly for persistence.
func (nw *Network) Params() []*Param { return nw.prms }

type seqCache struct {
	caches [][]*cellCache // [step][layer]
	masks  [][][]float64  // [step][layer] dropout mask on a layer's output
}

func (nw *Network) runSeq(xs [][]float64, train bool) (*seqCache, error) {
	L := len(nw.cells)
	H := nw.Cfg.HiddenDim
	sc := &seqCache{
		caches: make([][]*cellCache, len(xs)),
		masks:  make([][][]float64, len(xs)),
	}

	h := make([][]float64, L)
	c := make([][]float64, L)
	for l := 0; l < L; l++ {
		h[l] = make([]float64, H)
		c[l] = make([]float64, H)
	}

	drop := train && nw.Cfg.Dropout > 0 && L > 1
	for t, x := range xs {
		if len(x) != nw.Cfg.InputSize {
			return nil, fmt.Errorf("%w: input width %d, want %d", ErrShapeMismatch, len(x), nw.Cfg.InputSize)
		}
		sc.caches[t] = make([]*cellCache, L)
		sc.masks[t] = make([][]float64, L)

		in := x
		for l, cell := range nw.cells {
			cc := cell.step(in, h[l], c[l])
			sc.caches[t][l] = cc
			h[l] = cc.h
			if cc.c != nil {
				c[l] = cc.c
			}
			in = cc.h
			if drop && l < L-1 {
				mask := make([]float64, H)
				keep := 1 - nw.Cfg.Dropout
				masked := make([]float64, H)
				for j := range mask {
					if nw.rng.Float64() < keep {
						mask[j] = 1 / keep
					}
					masked[j] = in[j] * mask[j]
				}
				sc.masks[t][l] = mask
				in = masked
			}
		}
	}
	return sc, nil
}

func (nw *Network) topHidden(sc *seqCache, t int) []float64 {
	return sc.caches[t][len(nw.cells)-1].h
}

// backwardSeq propagates gradients through time. dys carries per-step
// head gradients for the rnn family; dhLast is an extra gradient into
// the top hidden state at the final step for the block family.
func (nw *Network) backwardSeq(sc *seqCache, dys []float64, dhLast []float64) {
	L := len(nw.cells)
	T := len(sc.caches)
	H := nw.Cfg.HiddenDim

	dh := make([][]float64, L)
	dc := make([][]float64, L)
	for l := 0; l < L; l++ {
		dh[l] = make([]float64, H)
		dc[l] = make([]float64, H)
	}

	for t := T - 1; t >= 0; t-- {
		if dys != nil && dys[t] != 0 {
			nw.out.backward(nw.topHidden(sc, t), []float64{dys[t]}, dh[L-1])
		}
		if t == T-1 && dhLast != nil {
			for j := range dhLast {
				dh[L-1][j] += dhLast[j]
			}
		}

		var fromAbove []float64
		for l := L - 1; l >= 0; l-- {
			if fromAbove != nil {
				if mask := sc.masks[t][l]; mask != nil {
					for j := range fromAbove {
						dh[l][j] += fromAbove[j] * mask[j]
					}
				} else {
					for j := range fromAbove {
						dh[l][j] += fromAbove[j]
					}
				}
			}
			dx := make([]float64, nw.cells[l].inputSize())
			dhPrev := make([]float64, H)
			dcPrev := make([]float64, H)
			nw.cells[l].backstep(sc.caches[t][l], dh[l], dc[l], dx, dhPrev, dcPrev)
			dh[l] = dhPrev
			dc[l] = dcPrev
			fromAbove = dx
		}
	}
}

// Sample is one training window: Inputs are feature rows per day,
// Targets the values to predict (per step for rnn, the output block
// for block_rnn).
type Sample struct {
	Inputs  [][]float64
	Targets []float64
}

// evalSample computes the sample loss; gradScale > 0 also accumulates
// gradients scaled by it.
func (nw *Network) evalSample(s Sample, gradScale float64) (float64, error) {
	if nw.Cfg.Family == FamilyBlockRNN {
		return nw.evalBlockSample(s, gradScale)
	}
	return nw.evalRNNSample(s, gradScale)
}

func (nw *Network) evalRNNSample(s Sample, gradScale float64) (float64, error) {
	T := len(s.Inputs)
	if T == 0 || len(s.Targets) != T {
		return 0, fmt.Errorf("%w: rnn window %d targets %d", ErrShapeMismatch, T, len(s.Targets))
	}
	sc, err := nw.runSeq(s.Inputs, gradScale > 0)
	if err != nil {
		return 0, err
	}

	total := 0.0
	var dys []float64
	if gradScale > 0 {
		dys = make([]float64, T)
	}
	for t := 0; t < T; t++ {
		y := nw.out.forward(nw.topHidden(sc, t))
		loss, grad := SmoothL1(y[0], s.Targets[t])
		total += loss
		if dys != nil {
			dys[t] = grad / float64(T) * gradScale
		}
	}
	if dys != nil {
		nw.backwardSeq(sc, dys, nil)
	}
	return total / float64(T), nil
}

func (nw *Network) evalBlockSample(s Sample, gradScale float64) (float64, error) {
	if len(s.Inputs) != nw.Cfg.InputChunk || len(s.Targets) != nw.Cfg.OutputChunk {
		return 0, fmt.Errorf("%w: block window %d/%d, want %d/%d",
			ErrShapeMismatch, len(s.Inputs), len(s.Targets), nw.Cfg.InputChunk, nw.Cfg.OutputChunk)
	}
	sc, err := nw.runSeq(s.Inputs, gradScale > 0)
	if err != nil {
		return 0, err
	}

	// FC head over the final hidden state.
	v := nw.topHidden(sc, len(s.Inputs)-1)
	ins := make([][]float64, len(nw.fcs))
	pres := make([][]float64, len(nw.fcs))
	for i, fc := range nw.fcs {
		ins[i] = v
		pre := fc.forward(v)
		act := make([]float64, len(pre))
		for j, p := range pre {
			if p > 0 {
				act[j] = p
			}
		}
		pres[i] = pre
		v = act
	}
	y := nw.out.forward(v)

	K := nw.Cfg.OutputChunk
	total := 0.0
	dy := make([]float64, K)
	for k := 0; k < K; k++ {
		loss, grad := SmoothL1(y[k], s.Targets[k])
		total += loss
		dy[k] = grad / float64(K) * gradScale
	}
	if gradScale > 0 {
		dv := make([]float64, len(v))
		nw.out.backward(v, dy, dv)
		for i := len(nw.fcs) - 1; i >= 0; i-- {
			dpre := make([]float64, len(dv))
			for j := range dv {
				if pres[i][j] > 0 {
					dpre[j] = dv[j]
				}
			}
			dIn := make([]float64, len(ins[i]))
			nw.fcs[i].backward(ins[i], dpre, dIn)
			dv = dIn
		}
		nw.backwardSeq(sc, nil, dv)
	}
	return total / float64(K), nil
}

// FitConfig controls the optimization loop.
type FitConfig struct {
	Epochs      int
	BatchSize   int
	LR          float64
	WeightDecay float64
	Patience    int // early stopping on train loss
	LRPatience  int // plateau scheduler on train loss
	LRFactor    float64
	MinLR       float64
}

// DefaultFitConfig mirrors the trainer defaults used in production.
func DefaultFitConfig() FitConfig {
	return FitConfig{
		Epochs:      100,
		BatchSize:   64,
		LR:          1e-3,
		WeightDecay: 1e-6,
		Patience:    10,
		LRPatience:  10,
		LRFactor:    0.5,
		MinLR:       1e-5,
	}
}

// FitResult reports what the optimization loop did.
type FitResult struct {
	Epochs      int
	TrainLoss   []float64
	ValLoss     []float64
	BestEpoch   int
	BestValLoss float64
}

// Fit trains on train, evaluating val each epoch when present. onBest
// fires whenever the validation loss improves. Validation samples
// with unusable shapes surface ErrShapeMismatch before any weights
// move.
func (nw *Network) Fit(train, val []Sample, fc FitConfig, onBest func(epoch int, valLoss float64) error) (*FitResult, error) {
	if len(train) == 0 {
		return nil, fmt.Errorf("%w: empty training set", ErrShapeMismatch)
	}
	for _, s := range val {
		if _, err := nw.checkSample(s); err != nil {
			return nil, err
		}
	}

	opt := NewAdam(fc.LR, fc.WeightDecay)
	if fc.BatchSize < 1 {
		fc.BatchSize = 1
	}

	res := &FitResult{BestValLoss: math.Inf(1)}
	bestTrain := math.Inf(1)
	sinceImprove := 0
	plateauWait := 0

	idx := make([]int, len(train))
	for i := range idx {
		idx[i] = i
	}

	for epoch := 1; epoch <= fc.Epochs; epoch++ {
		nw.rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })

		total := 0.0
		for start := 0; start < len(idx); start += fc.BatchSize {
			end := min(start+fc.BatchSize, len(idx))
			opt.ZeroGrads(nw.prms)
			scale := 1 / float64(end-start)
			for _, i := range idx[start:end] {
				loss, err := nw.evalSample(train[i], scale)
				if err != nil {
					return nil, err
				}
				total += loss
			}
			opt.Step(nw.prms)
		}
		trainLoss := total / float64(len(train))
		res.TrainLoss = append(res.TrainLoss, trainLoss)
		res.Epochs = epoch

		if len(val) > 0 {
			vTotal := 0.0
			for _, s := range val {
				loss, err := nw.evalSample(s, 0)
				if err != nil {
					return nil, err
				}
				vTotal += loss
			}
			valLoss := vTotal / float64(len(val))
			res.ValLoss = append(res.ValLoss, valLoss)
			if valLoss < res.BestValLoss-1e-12 {
				res.BestValLoss = valLoss
				res.BestEpoch = epoch
				if onBest != nil {
					if err := onBest(epoch, valLoss); err != nil {
						return nil, err
					}
				}
			}
		}

		if trainLoss < bestTrain-1e-9 {
			bestTrain = trainLoss
			sinceImprove = 0
			plateauWait = 0
		} else {
			sinceImprove++
			plateauWait++
		}
		if plateauWait >= fc.LRPatience && opt.LR > fc.MinLR {
			opt.LR = math.Max(opt.LR*fc.LRFactor, fc.MinLR)
			plateauWait = 0
		}
		if sinceImprove >= fc.Patience {
			break
		}
	}
	return res, nil
}

func (nw *Network) checkSample(s Sample) (bool, error) {
	if nw.Cfg.Family == FamilyBlockRNN {
		if len(s.Inputs) != nw.Cfg.InputChunk || len(s.Targets) != nw.Cfg.OutputChunk {
			return false, fmt.Errorf("%w: block window %d/%d, want %d/%d",
				ErrShapeMismatch, len(s.Inputs), len(s.Targets), nw.Cfg.InputChunk, nw.Cfg.OutputChunk)
		}
	} else if len(s.Inputs) == 0 || len(s.Inputs) != len(s.Targets) {
		return false, fmt.Errorf("%w: rnn window %d targets %d", ErrShapeMismatch, len(s.Inputs), len(s.Targets))
	}
	for _, x := range s.Inputs {
		if len(x) != nw.Cfg.InputSize {
			return false, fmt.Errorf("%w: input width %d, want %d", ErrShapeMismatch, len(x), nw.Cfg.InputSize)
		}
	}
	return true, nil
}

// PredictOneStep consumes a window of feature rows and returns the
// next-step prediction (rnn family).
func (nw *Network) PredictOneStep(window [][]float64) (float64, error) {
	sc, err := nw.runSeq(window, false)
	if err != nil {
		return 0, err
	}
	y := nw.out.forward(nw.topHidden(sc, len(window)-1))
	return y[0], nil
}

// PredictBlock consumes exactly InputChunk feature rows and returns
// OutputChunk predictions (block family).
func (nw *Network) PredictBlock(window [][]float64) ([]float64, error) {
	if len(window) != nw.Cfg.InputChunk {
		return nil, fmt.Errorf("%w: window %d, want %d", ErrShapeMismatch, len(window), nw.Cfg.InputChunk)
	}
	sc, err := nw.runSeq(window, false)
	if err != nil {
		return nil, err
	}
	v := nw.topHidden(sc, len(window)-1)
	for _, fc := range nw.fcs {
		pre := fc.forward(v)
		for j, p := range pre {
			if p < 0 {
				pre[j] = 0
			}
		}
		v = pre
	}
	return nw.out.forward(v), nil
}

// PredictSteps rolls the model forward autoregressively for `steps`
// days past the end of history. futureCov[k] holds the covariates of
// forecast day k.
func (nw *Network) PredictSteps(history [][]float64, futureCov [][]float64, steps int) ([]float64, error) {
	if steps < 1 {
		return nil, nil
	}
	if len(futureCov) < steps {
		return nil, fmt.Errorf("%w: covariates %d, want %d", ErrShapeMismatch, len(futureCov), steps)
	}

	if nw.Cfg.Family == FamilyBlockRNN {
		return nw.predictStepsBlock(history, futureCov, steps)
	}

	// Run the full history through the recurrent stack, then roll.
	L := len(nw.cells)
	H := nw.Cfg.HiddenDim
	h := make([][]float64, L)
	c := make([][]float64, L)
	for l := 0; l < L; l++ {
		h[l] = make([]float64, H)
		c[l] = make([]float64, H)
	}
	stepAll := func(x []float64) error {
		if len(x) != nw.Cfg.InputSize {
			return fmt.Errorf("%w: input width %d, want %d", ErrShapeMismatch, len(x), nw.Cfg.InputSize)
		}
		in := x
		for l, cell := range nw.cells {
			cc := cell.step(in, h[l], c[l])
			h[l] = cc.h
			if cc.c != nil {
				c[l] = cc.c
			}
			in = cc.h
		}
		return nil
	}

	for _, x := range history {
		if err := stepAll(x); err != nil {
			return nil, err
		}
	}

	preds := make([]float64, 0, steps)
	y := nw.out.forward(h[L-1])[0]
	preds = append(preds, y)
	for k := 1; k < steps; k++ {
		x := append([]float64{y}, futureCov[k-1]...)
		if err := stepAll(x); err != nil {
			return nil, err
		}
		y = nw.out.forward(h[L-1])[0]
		preds = append(preds, y)
	}
	return preds, nil
}

func (nw *Network) predictStepsBlock(history [][]float64, futureCov [][]float64, steps int) ([]float64, error) {
	in := nw.Cfg.InputChunk
	if len(history) < in {
		return nil, fmt.Errorf("%w: history %d, want at least %d", ErrShapeMismatch, len(history), in)
	}
	window := make([][]float64, in)
	copy(window, history[len(history)-in:])

	preds := make([]float64, 0, steps)
	for len(preds) < steps {
		ys, err := nw.PredictBlock(window)
		if err != nil {
			return nil, err
		}
		for _, y := range ys {
			if len(preds) >= steps {
				break
			}
			row := append([]float64{y}, futureCov[len(preds)]...)
			window = append(window[1:], row)
			preds = append(preds, y)
		}
	}
	return preds, nil
}
