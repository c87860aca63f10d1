package forecast

import (
	"math"
	"sort"
	"time"

	"CoinCast/internal/domain/models"
	"CoinCast/pkg/util"
)

// MinReturnPoints is the smallest return series an asset may
// contribute to training.
const MinReturnPoints = 6

// PriceFrame is a contiguous daily price series. Gaps in the source
// rows are forward-filled, so Dates[i+1] is always Dates[i]+1 day.
type PriceFrame struct {
	CryptoID  int
	Dates     []time.Time
	Prices    []float64
	LogPrices []float64
}

// Len returns the number of daily rows.
func (f *PriceFrame) Len() int { return len(f.Dates) }

// LastDate returns the newest date in the frame.
func (f *PriceFrame) LastDate() time.Time {
	return f.Dates[len(f.Dates)-1]
}

// PriceAt returns the price on a calendar date, false when the date
// falls outside the frame.
func (f *PriceFrame) PriceAt(date time.Time) (float64, bool) {
	if f.Len() == 0 {
		return 0, false
	}
	idx := util.DaysBetween(f.Dates[0], date)
	if idx < 0 || idx >= f.Len() {
		return 0, false
	}
	return f.Prices[idx], true
}

// BuildPriceFrame normalizes raw price rows into a contiguous daily
// frame: sort by date, collapse duplicate days (last observation
// wins), reindex to a full daily calendar, forward-fill gaps, and
// compute log prices.
func BuildPriceFrame(cryptoID int, points []models.PricePoint) *PriceFrame {
	if len(points) == 0 {
		return &PriceFrame{CryptoID: cryptoID}
	}

	sorted := make([]models.PricePoint, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	byDay := make(map[time.Time]float64, len(sorted))
	for _, p := range sorted {
		byDay[util.DateOnly(p.Date)] = p.PriceFloat()
	}

	first := util.DateOnly(sorted[0].Date)
	last := util.DateOnly(sorted[len(sorted)-1].Date)
	n := util.DaysBetween(first, last) + 1

	frame := &PriceFrame{
		CryptoID:  cryptoID,
		Dates:     make([]time.Time, 0, n),
		Prices:    make([]float64, 0, n),
		LogPrices: make([]float64, 0, n),
	}

	prev := byDay[first]
	for d := 0; d < n; d++ {
		date := util.AddDays(first, d)
		price, ok := byDay[date]
		if !ok {
			price = prev
		}
		prev = price
		frame.Dates = append(frame.Dates, date)
		frame.Prices = append(frame.Prices, price)
		frame.LogPrices = append(frame.LogPrices, math.Log(price))
	}
	return frame
}

// ReturnSeries is a daily log-return series. Dates[i] is the day the
// return realizes on, i.e. the frame date at index i+1.
type ReturnSeries struct {
	CryptoID int
	Dates    []time.Time
	Values   []float64
}

// Len returns the number of return points.
func (s *ReturnSeries) Len() int { return len(s.Values) }

// BuildReturnSeries differences log prices into daily log returns.
func BuildReturnSeries(frame *PriceFrame) *ReturnSeries {
	n := frame.Len()
	if n < 2 {
		return &ReturnSeries{CryptoID: frame.CryptoID}
	}
	s := &ReturnSeries{
		CryptoID: frame.CryptoID,
		Dates:    make([]time.Time, 0, n-1),
		Values:   make([]float64, 0, n-1),
	}
	for i := 1; i < n; i++ {
		s.Dates = append(s.Dates, frame.Dates[i])
		s.Values = append(s.Values, frame.LogPrices[i]-frame.LogPrices[i-1])
	}
	return s
}

// Covariates holds calendar features on a contiguous daily calendar
// extending beyond the observed history by the forecast horizon.
type Covariates struct {
	Start time.Time
	Rows  [][]float64 // each row: dow_sin, dow_cos, doy_sin, doy_cos
}

// NumCovariates is the width of one covariate row.
const NumCovariates = 4

// BuildCovariates computes cyclic calendar features from the first
// frame date through the last frame date plus horizonDays.
func BuildCovariates(frame *PriceFrame, horizonDays int) *Covariates {
	if frame.Len() == 0 {
		return &Covariates{}
	}
	n := frame.Len() + horizonDays
	cov := &Covariates{
		Start: frame.Dates[0],
		Rows:  make([][]float64, 0, n),
	}
	for d := 0; d < n; d++ {
		cov.Rows = append(cov.Rows, calendarRow(util.AddDays(frame.Dates[0], d)))
	}
	return cov
}

// At returns the covariate row for a calendar date, false when the
// date is outside the built calendar.
func (c *Covariates) At(date time.Time) ([]float64, bool) {
	idx := util.DaysBetween(c.Start, date)
	if idx < 0 || idx >= len(c.Rows) {
		return nil, false
	}
	return c.Rows[idx], true
}

func calendarRow(date time.Time) []float64 {
	dow := float64(date.Weekday())
	doy := float64(date.YearDay())
	return []float64{
		math.Sin(2 * math.Pi * dow / 7),
		math.Cos(2 * math.Pi * dow / 7),
		math.Sin(2 * math.Pi * doy / 365.25),
		math.Cos(2 * math.Pi * doy / 365.25),
	}
}
