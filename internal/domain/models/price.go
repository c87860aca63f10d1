package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PricePoint is a daily close price observation for one asset.
type PricePoint struct {
	CryptoID int             `json:"crypto_id"`
	Date     time.Time       `json:"date"`
	Price    decimal.Decimal `json:"price"`
}

// PriceFloat returns the price as float64 for numerical code.
func (p PricePoint) PriceFloat() float64 {
	f, _ := p.Price.Float64()
	return f
}
