package forecast

import (
	"testing"

	"CoinCast/internal/domain/models"
)

func TestResolveChunkLengthsRNNForcesSingleStep(t *testing.T) {
	in, out := ResolveChunkLengths(200, 30, 7, models.FamilyRNN)
	if out != 1 {
		t.Fatalf("expected output chunk 1, got %d", out)
	}
	if in != 30 {
		t.Fatalf("expected input chunk 30, got %d", in)
	}
}

func TestResolveChunkLengthsShrinksToFit(t *testing.T) {
	// 12 points cannot hold in=30,out=7; both must shrink but stay
	// feasible: in+out <= len.
	in, out := ResolveChunkLengths(12, 30, 7, models.FamilyBlockRNN)
	if in+out > 12 {
		t.Fatalf("resolved %d+%d exceeds series length", in, out)
	}
	if in < 3 || out < 1 {
		t.Fatalf("resolved chunks below floor: in=%d out=%d", in, out)
	}
}

func TestResolveChunkLengthsTinySeries(t *testing.T) {
	for length := 6; length <= 15; length++ {
		in, out := ResolveChunkLengths(length, 30, 7, models.FamilyBlockRNN)
		if in+out > length {
			t.Fatalf("len=%d: %d+%d not feasible", length, in, out)
		}
		if out < 1 {
			t.Fatalf("len=%d: out=%d", length, out)
		}
	}
}

func TestResolveTrainingLength(t *testing.T) {
	if got := ResolveTrainingLength(100, 30, 60); got != 60 {
		t.Fatalf("expected 60, got %d", got)
	}
	if got := ResolveTrainingLength(40, 30, 60); got != 40 {
		t.Fatalf("expected clamp to series length 40, got %d", got)
	}
	if got := ResolveTrainingLength(20, 30, 10); got != 30 {
		t.Fatalf("expected floor at input chunk 30, got %d", got)
	}
}

func TestMinRequiredLength(t *testing.T) {
	if got := MinRequiredLength(models.FamilyRNN, 30, 1, 60); got != 61 {
		t.Fatalf("rnn: expected 61, got %d", got)
	}
	if got := MinRequiredLength(models.FamilyBlockRNN, 30, 7, 0); got != 37 {
		t.Fatalf("block: expected 37, got %d", got)
	}
}

func TestResolveValSplitKeepsBothSidesFeasible(t *testing.T) {
	ratio := ResolveValSplit(200, 0.2, 37)
	if ratio <= 0 {
		t.Fatalf("expected a usable split, got %v", ratio)
	}
	trainLen, valLen := SplitLengths(200, ratio)
	if trainLen < 37 || valLen < 37 {
		t.Fatalf("split %v leaves train=%d val=%d below minimum", ratio, trainLen, valLen)
	}
}

func TestResolveValSplitZeroWhenImpossible(t *testing.T) {
	// Series too short to hold two minimum-length slices.
	if got := ResolveValSplit(50, 0.2, 37); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
	if got := ResolveValSplit(100, 0, 37); got != 0 {
		t.Fatalf("expected 0 for disabled split, got %v", got)
	}
}

func TestResolveValSplitNeverExceedsHalf(t *testing.T) {
	if got := ResolveValSplit(1000, 0.9, 10); got > 0.5 {
		t.Fatalf("expected ratio <= 0.5, got %v", got)
	}
}

func TestSplitLengthsZeroRatio(t *testing.T) {
	trainLen, valLen := SplitLengths(80, 0)
	if trainLen != 80 || valLen != 0 {
		t.Fatalf("unexpected split %d/%d", trainLen, valLen)
	}
}

func TestSplitLengthsTruncatesValidationSlice(t *testing.T) {
	// Fractional products truncate toward the training side, so 23.8
	// validation points become 23, never 24.
	trainLen, valLen := SplitLengths(119, 0.2)
	if valLen != 23 || trainLen != 96 {
		t.Fatalf("expected 96/23, got %d/%d", trainLen, valLen)
	}

	// Exact products stay exact.
	trainLen, valLen = SplitLengths(200, 0.2)
	if valLen != 40 || trainLen != 160 {
		t.Fatalf("expected 160/40, got %d/%d", trainLen, valLen)
	}
}
