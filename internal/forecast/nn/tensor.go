package nn

import (
	"fmt"
	"math/rand"
)

// Tensor is a dense row-major matrix. Vectors use Cols == 1.
type Tensor struct {
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float64 `json:"data"`
}

// NewTensor allocates a zero tensor.
func NewTensor(rows, cols int) *Tensor {
	return &Tensor{Rows: rows, Cols: cols, Data: make([]float64, rows*cols)}
}

// At reads element (i, j).
func (t *Tensor) At(i, j int) float64 { return t.Data[i*t.Cols+j] }

// Set writes element (i, j).
func (t *Tensor) Set(i, j int, v float64) { t.Data[i*t.Cols+j] = v }

// Zero resets every element.
func (t *Tensor) Zero() {
	for i := range t.Data {
		t.Data[i] = 0
	}
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	c := NewTensor(t.Rows, t.Cols)
	copy(c.Data, t.Data)
	return c
}

// CopyFrom copies values from another tensor of the same shape.
func (t *Tensor) CopyFrom(o *Tensor) error {
	if o == nil || t.Rows != o.Rows || t.Cols != o.Cols {
		return fmt.Errorf("%w: want %dx%d", ErrShapeMismatch, t.Rows, t.Cols)
	}
	copy(t.Data, o.Data)
	return nil
}

// MulVec computes out = T·x. len(x) must equal Cols, len(out) Rows.
func (t *Tensor) MulVec(x, out []float64) {
	for i := 0; i < t.Rows; i++ {
		sum := 0.0
		row := t.Data[i*t.Cols : (i+1)*t.Cols]
		for j, w := range row {
			sum += w * x[j]
		}
		out[i] = sum
	}
}

// TMulVecAdd accumulates out += Tᵀ·x. len(x) must equal Rows,
// len(out) Cols.
func (t *Tensor) TMulVecAdd(x, out []float64) {
	for i := 0; i < t.Rows; i++ {
		xi := x[i]
		if xi == 0 {
			continue
		}
		row := t.Data[i*t.Cols : (i+1)*t.Cols]
		for j, w := range row {
			out[j] += w * xi
		}
	}
}

// AddOuter accumulates T += a⊗b. len(a) must equal Rows, len(b) Cols.
func (t *Tensor) AddOuter(a, b []float64) {
	for i := 0; i < t.Rows; i++ {
		ai := a[i]
		if ai == 0 {
			continue
		}
		row := t.Data[i*t.Cols : (i+1)*t.Cols]
		for j := range row {
			row[j] += ai * b[j]
		}
	}
}

// Param is one learnable tensor with its gradient and Adam state.
type Param struct {
	Name string
	Val  *Tensor
	Grad *Tensor

	m, v *Tensor
}

func newParam(name string, rows, cols int, rng *rand.Rand, bound float64) *Param {
	p := &Param{
		Name: name,
		Val:  NewTensor(rows, cols),
		Grad: NewTensor(rows, cols),
		m:    NewTensor(rows, cols),
		v:    NewTensor(rows, cols),
	}
	if bound > 0 {
		for i := range p.Val.Data {
			p.Val.Data[i] = (rng.Float64()*2 - 1) * bound
		}
	}
	return p
}
