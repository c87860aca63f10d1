package nn

import (
	"math"
	"testing"
)

func TestSmoothL1QuadraticRegion(t *testing.T) {
	loss, grad := SmoothL1(0.5, 0)
	if math.Abs(loss-0.125) > 1e-12 {
		t.Fatalf("expected 0.125, got %v", loss)
	}
	if math.Abs(grad-0.5) > 1e-12 {
		t.Fatalf("expected grad 0.5, got %v", grad)
	}
}

func TestSmoothL1LinearRegion(t *testing.T) {
	loss, grad := SmoothL1(3, 0)
	if math.Abs(loss-2.5) > 1e-12 {
		t.Fatalf("expected 2.5, got %v", loss)
	}
	if grad != 1 {
		t.Fatalf("expected grad 1, got %v", grad)
	}

	loss, grad = SmoothL1(-3, 0)
	if math.Abs(loss-2.5) > 1e-12 {
		t.Fatalf("expected 2.5, got %v", loss)
	}
	if grad != -1 {
		t.Fatalf("expected grad -1, got %v", grad)
	}
}

func TestSmoothL1ZeroAtTarget(t *testing.T) {
	loss, grad := SmoothL1(1.5, 1.5)
	if loss != 0 || grad != 0 {
		t.Fatalf("expected zero loss and grad, got %v %v", loss, grad)
	}
}

func TestSmoothL1ContinuousAtTransition(t *testing.T) {
	inner, _ := SmoothL1(0.999999, 0)
	outer, _ := SmoothL1(1.000001, 0)
	if math.Abs(inner-outer) > 1e-5 {
		t.Fatalf("loss not continuous at transition: %v vs %v", inner, outer)
	}
}
