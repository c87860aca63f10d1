package nn

import "math"

// SmoothL1 returns the Huber-style smooth L1 loss and its derivative
// with respect to pred, with transition point 1.
func SmoothL1(pred, target float64) (float64, float64) {
	d := pred - target
	if math.Abs(d) < 1 {
		return 0.5 * d * d, d
	}
	if d > 0 {
		return d - 0.5, 1
	}
	return -d - 0.5, -1
}
