package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ModelKind is the storage table a forecast belongs to.
type ModelKind string

const (
	KindLSTM ModelKind = "lstm"
	KindGRU  ModelKind = "gru"
)

// KindForCell maps a recurrent cell to its forecast table.
func KindForCell(cell CellType) ModelKind {
	if cell == CellGRU {
		return KindGRU
	}
	return KindLSTM
}

// ForecastRow is one stored forecast price with its confidence bounds.
// CutoffDate is the last observed price date the prediction was made
// from; HorizonDays is how far past the cutoff the run projects.
type ForecastRow struct {
	CryptoID    int             `json:"crypto_id"`
	Date        time.Time       `json:"date"`
	PriceHat    decimal.Decimal `json:"price_hat"`
	PriceLow    decimal.Decimal `json:"price_low"`
	PriceHigh   decimal.Decimal `json:"price_high"`
	CutoffDate  time.Time       `json:"cutoff_date"`
	HorizonDays int             `json:"horizon_days"`
	ModelRunID  int64           `json:"model_run_id"`
}

// ForecastMeta summarizes stored forecasts for one asset and kind.
type ForecastMeta struct {
	CryptoID    int       `json:"crypto_id"`
	Kind        ModelKind `json:"kind"`
	Rows        int       `json:"rows"`
	FirstDate   time.Time `json:"first_date"`
	LastDate    time.Time `json:"last_date"`
	CutoffDate  time.Time `json:"cutoff_date"`
	HorizonDays int       `json:"horizon_days"`
	ModelRunID  int64     `json:"model_run_id"`
}
