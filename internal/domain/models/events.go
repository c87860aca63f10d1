package models

import "time"

// PricesUpdatedEvent is published after new daily prices are stored.
type PricesUpdatedEvent struct {
	CryptoID  int       `json:"crypto_id"`
	Symbol    string    `json:"symbol"`
	NewPoints int       `json:"new_points"`
	LatestDay string    `json:"latest_day"`
	At        time.Time `json:"at"`
}

// ForecastCompletedEvent is published after forecasts are replaced.
type ForecastCompletedEvent struct {
	CryptoID   int       `json:"crypto_id"`
	Kind       ModelKind `json:"kind"`
	ModelRunID int64     `json:"model_run_id"`
	Rows       int       `json:"rows"`
	At         time.Time `json:"at"`
}
