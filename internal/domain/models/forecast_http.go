package models

// TrainRequest starts a global training job over the configured
// assets. By default every training inserts a fresh run row;
// warm_start_run_id seeds weights from an existing run, and
// update_run_id retrains that run row in place.
type TrainRequest struct {
	ModelFamily       string  `json:"model_family" default:"rnn" validate:"oneof=rnn block_rnn"`
	CellType          string  `json:"cell_type" default:"LSTM" validate:"oneof=LSTM GRU"`
	HorizonDays       int     `json:"horizon_days" default:"7" validate:"gte=1,lte=90"`
	InputChunkLength  int     `json:"input_chunk_length" default:"30" validate:"gte=1"`
	OutputChunkLength int     `json:"output_chunk_length" default:"7" validate:"gte=1"`
	TrainingLength    int     `json:"training_length" default:"60" validate:"gte=1"`
	HiddenDim         int     `json:"hidden_dim" default:"32" validate:"gte=1,lte=512"`
	NRNNLayers        int     `json:"n_rnn_layers" default:"1" validate:"gte=1,lte=4"`
	NEpochs           int     `json:"n_epochs" default:"50" validate:"gte=1,lte=2000"`
	BatchSize         int     `json:"batch_size" default:"64" validate:"gte=1"`
	ValSplit          float64 `json:"val_split" default:"0.2" validate:"gte=0,lte=0.9"`
	RandomState       int     `json:"random_state" default:"42"`
	WarmStartRunID    int64   `json:"warm_start_run_id" validate:"gte=0"`
	UpdateRunID       int64   `json:"update_run_id" validate:"gte=0"`
}

// ForecastQuery reads stored forecasts for one asset.
type ForecastQuery struct {
	Model string `query:"model" default:"lstm" validate:"oneof=lstm gru"`
	Days  int    `query:"days" default:"0" validate:"gte=0"`
}

// JobResponse is the API shape of a job snapshot.
type JobResponse struct {
	Key     string `json:"key"`
	State   string `json:"state"`
	Label   string `json:"label"`
	Message string `json:"message"`
	Result  int    `json:"result"`
}

// JobResponseFrom converts a job snapshot for the API.
func JobResponseFrom(j Job) JobResponse {
	return JobResponse{
		Key:     j.Key,
		State:   string(j.State),
		Label:   j.Label,
		Message: j.Message,
		Result:  j.Result,
	}
}
