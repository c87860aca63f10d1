package forecast

import "errors"

var (
	// ErrInsufficientHistory means an asset has too few price days to
	// produce a usable return series.
	ErrInsufficientHistory = errors.New("forecast: insufficient price history")

	// ErrNoTrainableAssets means every candidate asset was dropped
	// during preprocessing or sizing.
	ErrNoTrainableAssets = errors.New("forecast: no trainable assets")

	// ErrArtifactMissing means a run row exists but no loadable model
	// artifact or checkpoint is on disk.
	ErrArtifactMissing = errors.New("forecast: model artifact missing")

	// ErrModelRunNotFound means no run row matched the lookup.
	ErrModelRunNotFound = errors.New("forecast: model run not found")
)
