package nn

import (
	"math"
	"math/rand"
)

// linear is a fully connected layer y = W·x + b.
type linear struct {
	In, Out int
	W, B    *Param
}

func newLinear(name string, in, out int, rng *rand.Rand) *linear {
	bound := 1 / math.Sqrt(float64(in))
	return &linear{
		In:  in,
		Out: out,
		W:   newParam(name+".w", out, in, rng, bound),
		B:   newParam(name+".b", out, 1, rng, bound),
	}
}

func (l *linear) params() []*Param { return []*Param{l.W, l.B} }

func (l *linear) forward(x []float64) []float64 {
	y := make([]float64, l.Out)
	l.W.Val.MulVec(x, y)
	for i := range y {
		y[i] += l.B.Val.Data[i]
	}
	return y
}

// backward accumulates parameter gradients and, when dx is non-nil,
// accumulates dx += Wᵀ·dy.
func (l *linear) backward(x, dy, dx []float64) {
	l.W.Grad.AddOuter(dy, x)
	for i := range dy {
		l.B.Grad.Data[i] += dy[i]
	}
	if dx != nil {
		l.W.Val.TMulVecAdd(dy, dx)
	}
}
