package nn

import (
	"math"
	"math/rand"
)

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

// cellCache stores the per-step activations a cell needs for
// backpropagation through time.
type cellCache struct {
	x, hPrev, cPrev []float64
	h, c            []float64
	i, f, g, o      []float64 // lstm gates
	r, z, n, ahn    []float64 // gru gates and candidate hidden pre-activation
}

type recurrentCell interface {
	hiddenSize() int
	inputSize() int
	params() []*Param
	step(x, hPrev, cPrev []float64) *cellCache
	// backstep accumulates parameter gradients and writes input
	// gradients: dx and dhPrev are accumulated into, dcPrev is
	// overwritten.
	backstep(cc *cellCache, dh, dc, dx, dhPrev, dcPrev []float64)
}

// LSTMCell is a single LSTM layer. Gate order in the stacked weight
// matrices is input, forget, cell, output.
type LSTMCell struct {
	In, Hidden int
	Wx, Wh, B  *Param
}

func newLSTMCell(name string, in, hidden int, rng *rand.Rand) *LSTMCell {
	bound := 1 / math.Sqrt(float64(hidden))
	return &LSTMCell{
		In:     in,
		Hidden: hidden,
		Wx:     newParam(name+".wx", 4*hidden, in, rng, bound),
		Wh:     newParam(name+".wh", 4*hidden, hidden, rng, bound),
		B:      newParam(name+".b", 4*hidden, 1, rng, bound),
	}
}

func (c *LSTMCell) hiddenSize() int  { return c.Hidden }
func (c *LSTMCell) inputSize() int   { return c.In }
func (c *LSTMCell) params() []*Param { return []*Param{c.Wx, c.Wh, c.B} }

func (c *LSTMCell) step(x, hPrev, cPrev []float64) *cellCache {
	H := c.Hidden
	pre := make([]float64, 4*H)
	c.Wx.Val.MulVec(x, pre)
	rec := make([]float64, 4*H)
	c.Wh.Val.MulVec(hPrev, rec)
	for k := range pre {
		pre[k] += rec[k] + c.B.Val.Data[k]
	}

	cc := &cellCache{
		x: x, hPrev: hPrev, cPrev: cPrev,
		i: make([]float64, H), f: make([]float64, H),
		g: make([]float64, H), o: make([]float64, H),
		h: make([]float64, H), c: make([]float64, H),
	}
	for j := 0; j < H; j++ {
		cc.i[j] = sigmoid(pre[j])
		cc.f[j] = sigmoid(pre[H+j])
		cc.g[j] = math.Tanh(pre[2*H+j])
		cc.o[j] = sigmoid(pre[3*H+j])
		cc.c[j] = cc.f[j]*cPrev[j] + cc.i[j]*cc.g[j]
		cc.h[j] = cc.o[j] * math.Tanh(cc.c[j])
	}
	return cc
}

func (c *LSTMCell) backstep(cc *cellCache, dh, dc, dx, dhPrev, dcPrev []float64) {
	H := c.Hidden
	dz := make([]float64, 4*H)
	for j := 0; j < H; j++ {
		tc := math.Tanh(cc.c[j])
		dcj := dc[j] + dh[j]*cc.o[j]*(1-tc*tc)
		di := dcj * cc.g[j]
		df := dcj * cc.cPrev[j]
		dg := dcj * cc.i[j]
		do := dh[j] * tc
		dcPrev[j] = dcj * cc.f[j]

		dz[j] = di * cc.i[j] * (1 - cc.i[j])
		dz[H+j] = df * cc.f[j] * (1 - cc.f[j])
		dz[2*H+j] = dg * (1 - cc.g[j]*cc.g[j])
		dz[3*H+j] = do * cc.o[j] * (1 - cc.o[j])
	}

	c.Wx.Grad.AddOuter(dz, cc.x)
	c.Wh.Grad.AddOuter(dz, cc.hPrev)
	for k := range dz {
		c.B.Grad.Data[k] += dz[k]
	}
	c.Wx.Val.TMulVecAdd(dz, dx)
	c.Wh.Val.TMulVecAdd(dz, dhPrev)
}

// GRUCell is a single GRU layer. Gate order is reset, update,
// candidate. The candidate recurrent term is gated by reset before
// the nonlinearity.
type GRUCell struct {
	In, Hidden int
	Wx, Wh, B  *Param
}

func newGRUCell(name string, in, hidden int, rng *rand.Rand) *GRUCell {
	bound := 1 / math.Sqrt(float64(hidden))
	return &GRUCell{
		In:     in,
		Hidden: hidden,
		Wx:     newParam(name+".wx", 3*hidden, in, rng, bound),
		Wh:     newParam(name+".wh", 3*hidden, hidden, rng, bound),
		B:      newParam(name+".b", 3*hidden, 1, rng, bound),
	}
}

func (c *GRUCell) hiddenSize() int  { return c.Hidden }
func (c *GRUCell) inputSize() int   { return c.In }
func (c *GRUCell) params() []*Param { return []*Param{c.Wx, c.Wh, c.B} }

func (c *GRUCell) step(x, hPrev, _ []float64) *cellCache {
	H := c.Hidden
	ax := make([]float64, 3*H)
	c.Wx.Val.MulVec(x, ax)
	for k := range ax {
		ax[k] += c.B.Val.Data[k]
	}
	ah := make([]float64, 3*H)
	c.Wh.Val.MulVec(hPrev, ah)

	cc := &cellCache{
		x: x, hPrev: hPrev,
		r: make([]float64, H), z: make([]float64, H),
		n: make([]float64, H), ahn: make([]float64, H),
		h: make([]float64, H),
	}
	for j := 0; j < H; j++ {
		cc.r[j] = sigmoid(ax[j] + ah[j])
		cc.z[j] = sigmoid(ax[H+j] + ah[H+j])
		cc.ahn[j] = ah[2*H+j]
		cc.n[j] = math.Tanh(ax[2*H+j] + cc.r[j]*cc.ahn[j])
		cc.h[j] = (1-cc.z[j])*cc.n[j] + cc.z[j]*hPrev[j]
	}
	return cc
}

func (c *GRUCell) backstep(cc *cellCache, dh, _, dx, dhPrev, _ []float64) {
	H := c.Hidden
	dax := make([]float64, 3*H)
	dah := make([]float64, 3*H)
	for j := 0; j < H; j++ {
		dn := dh[j] * (1 - cc.z[j])
		dan := dn * (1 - cc.n[j]*cc.n[j])
		dzg := dh[j] * (cc.hPrev[j] - cc.n[j]) * cc.z[j] * (1 - cc.z[j])
		dr := dan * cc.ahn[j]
		dzr := dr * cc.r[j] * (1 - cc.r[j])
		dhPrev[j] += dh[j] * cc.z[j]

		dax[j] = dzr
		dax[H+j] = dzg
		dax[2*H+j] = dan
		dah[j] = dzr
		dah[H+j] = dzg
		dah[2*H+j] = dan * cc.r[j]
	}

	c.Wx.Grad.AddOuter(dax, cc.x)
	c.Wh.Grad.AddOuter(dah, cc.hPrev)
	for k := range dax {
		c.B.Grad.Data[k] += dax[k]
	}
	c.Wx.Val.TMulVecAdd(dax, dx)
	c.Wh.Val.TMulVecAdd(dah, dhPrev)
}
