package forecast

import (
	"math"

	"CoinCast/internal/domain/models"
)

// minInputChunk is the smallest usable input window; minTrainSlice is
// the smallest training slice an asset may keep after a val split.
const (
	minInputChunk = 5
	minTrainSlice = 5
)

// Sizing is the resolved window geometry for one training run. All
// fields are derived from the shortest surviving series and are always
// feasible for it.
type Sizing struct {
	InputChunk     int
	OutputChunk    int
	TrainingLength int // rnn family only, 0 otherwise
	MinRequired    int
	ValSplit       float64
}

// ResolveChunkLengths shrinks the desired chunk lengths until they fit
// the series. The rnn family always trains one step ahead, so its
// output chunk is forced to 1 before resolution.
func ResolveChunkLengths(seriesLen, desiredIn, desiredOut int, family models.ModelFamily) (int, int) {
	out := desiredOut
	if family == models.FamilyRNN {
		out = 1
	}
	if out < 1 {
		out = 1
	}

	if seriesLen-out < minInputChunk {
		out = max(1, seriesLen-minInputChunk)
	}
	in := max(minInputChunk, min(desiredIn, seriesLen-out))
	if in+out > seriesLen {
		in = max(3, seriesLen-out)
	}
	return in, out
}

// ResolveTrainingLength bounds the rnn training window by the series
// while never dropping below the input chunk.
func ResolveTrainingLength(seriesLen, inputChunk, desired int) int {
	return max(inputChunk, min(desired, seriesLen))
}

// MinRequiredLength is the shortest series a model can fit on.
func MinRequiredLength(family models.ModelFamily, inputChunk, outputChunk, trainingLength int) int {
	if family == models.FamilyRNN {
		return max(inputChunk, trainingLength) + max(1, outputChunk)
	}
	return inputChunk + max(1, outputChunk)
}

// ResolveValSplit clamps a desired validation ratio so that both the
// validation and the training slice of a series of seriesLen stay at
// or above minRequired. Returns 0 when no safe split exists.
func ResolveValSplit(seriesLen int, desired float64, minRequired int) float64 {
	if desired <= 0 || seriesLen <= 0 {
		return 0
	}

	lo := float64(minRequired) / float64(seriesLen)
	hi := float64(seriesLen-minRequired) / float64(seriesLen)
	if lo > hi {
		return 0
	}

	ratio := desired
	if ratio < lo {
		ratio = lo
	}
	if ratio > hi {
		ratio = hi
	}
	if ratio > 0.5 {
		ratio = 0.5
	}

	valLen := truncLen(seriesLen, ratio)
	if valLen < minRequired || seriesLen-valLen < minRequired {
		return 0
	}
	return ratio
}

// SplitLengths converts a resolved ratio into (train, val) lengths
// for one series. Geometry is resolved once against the full series;
// the split is not re-resolved against the training slice afterwards.
func SplitLengths(seriesLen int, ratio float64) (int, int) {
	if ratio <= 0 {
		return seriesLen, 0
	}
	valLen := truncLen(seriesLen, ratio)
	return seriesLen - valLen, valLen
}

// truncLen truncates seriesLen*ratio toward zero, with an epsilon so
// exact products like 200*0.2 do not land one short.
func truncLen(seriesLen int, ratio float64) int {
	return int(math.Floor(float64(seriesLen)*ratio + 1e-9))
}
