package nn

import "math"

// Adam is the Adam optimizer with decoupled L2 weight decay folded
// into the gradient.
type Adam struct {
	LR          float64
	WeightDecay float64
	Beta1       float64
	Beta2       float64
	Eps         float64

	step int
}

func NewAdam(lr, weightDecay float64) *Adam {
	return &Adam{
		LR:          lr,
		WeightDecay: weightDecay,
		Beta1:       0.9,
		Beta2:       0.999,
		Eps:         1e-8,
	}
}

// Step applies one update to every parameter from its accumulated
// gradient, then advances the bias-correction counter.
func (a *Adam) Step(params []*Param) {
	a.step++
	bc1 := 1 - math.Pow(a.Beta1, float64(a.step))
	bc2 := 1 - math.Pow(a.Beta2, float64(a.step))

	for _, p := range params {
		for i := range p.Val.Data {
			g := p.Grad.Data[i] + a.WeightDecay*p.Val.Data[i]
			p.m.Data[i] = a.Beta1*p.m.Data[i] + (1-a.Beta1)*g
			p.v.Data[i] = a.Beta2*p.v.Data[i] + (1-a.Beta2)*g*g
			mHat := p.m.Data[i] / bc1
			vHat := p.v.Data[i] / bc2
			p.Val.Data[i] -= a.LR * mHat / (math.Sqrt(vHat) + a.Eps)
		}
	}
}

// ZeroGrads clears accumulated gradients before a new batch.
func (a *Adam) ZeroGrads(params []*Param) {
	for _, p := range params {
		p.Grad.Zero()
	}
}
