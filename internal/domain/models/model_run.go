package models

import "time"

// ModelFamily selects the network architecture.
type ModelFamily string

const (
	FamilyRNN      ModelFamily = "rnn"
	FamilyBlockRNN ModelFamily = "block_rnn"
)

// CellType selects the recurrent cell.
type CellType string

const (
	CellLSTM CellType = "LSTM"
	CellGRU  CellType = "GRU"
)

// Run lifecycle statuses.
const (
	RunStatusPending = "pending"
	RunStatusTrained = "trained"
	RunStatusFailed  = "failed"
)

// ModelRun is one registered training of a forecast model. Every
// training inserts a fresh row unless the caller explicitly asks to
// update an existing run in place.
type ModelRun struct {
	ID                int64          `json:"id"`
	Scope             string         `json:"scope"`
	ModelFamily       ModelFamily    `json:"model_family"`
	CellType          CellType       `json:"cell_type"`
	HorizonDays       int            `json:"horizon_days"`
	TargetTransform   string         `json:"target_transform"`
	KeyDigest         string         `json:"key_digest"`
	ModelName         string         `json:"model_name"`
	WorkDir           string         `json:"work_dir"`
	ArtifactPath      string         `json:"artifact_path"`
	TrainingCryptoIDs []int          `json:"training_crypto_ids"`
	Hyperparams       map[string]any `json:"hyperparams"`
	ValSplit          float64        `json:"val_split"`
	TrainStartDate    time.Time      `json:"train_start_date"`
	TrainEndDate      time.Time      `json:"train_end_date"`
	CutoffDate        time.Time      `json:"cutoff_date"`
	Status            string         `json:"status"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}
