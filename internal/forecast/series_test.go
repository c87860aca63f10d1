package forecast

import (
	"math"
	"testing"
	"time"

	"CoinCast/internal/domain/models"
	"CoinCast/pkg/util"

	"github.com/shopspring/decimal"
)

func day(s string) time.Time {
	d, err := util.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func point(cryptoID int, date string, price float64) models.PricePoint {
	return models.PricePoint{
		CryptoID: cryptoID,
		Date:     day(date),
		Price:    decimal.NewFromFloat(price),
	}
}

func TestBuildPriceFrameForwardFillsGaps(t *testing.T) {
	points := []models.PricePoint{
		point(1, "2024-01-01", 100),
		point(1, "2024-01-02", 110),
		// 3rd and 4th missing
		point(1, "2024-01-05", 130),
	}
	frame := BuildPriceFrame(1, points)

	if frame.Len() != 5 {
		t.Fatalf("expected 5 daily rows, got %d", frame.Len())
	}
	if frame.Prices[2] != 110 || frame.Prices[3] != 110 {
		t.Fatalf("expected gap days filled with 110, got %v", frame.Prices)
	}
	if !frame.LastDate().Equal(day("2024-01-05")) {
		t.Fatalf("unexpected last date %v", frame.LastDate())
	}
}

func TestBuildPriceFrameSortsAndDeduplicates(t *testing.T) {
	points := []models.PricePoint{
		point(1, "2024-01-03", 120),
		point(1, "2024-01-01", 100),
		point(1, "2024-01-01", 105), // later observation wins
		point(1, "2024-01-02", 110),
	}
	frame := BuildPriceFrame(1, points)

	if frame.Len() != 3 {
		t.Fatalf("expected 3 rows, got %d", frame.Len())
	}
	if frame.Prices[0] != 105 {
		t.Fatalf("expected duplicate day resolved to 105, got %v", frame.Prices[0])
	}
	for i := 1; i < frame.Len(); i++ {
		if util.DaysBetween(frame.Dates[i-1], frame.Dates[i]) != 1 {
			t.Fatalf("dates not contiguous at %d", i)
		}
	}
}

func TestPriceAt(t *testing.T) {
	frame := BuildPriceFrame(1, []models.PricePoint{
		point(1, "2024-01-01", 100),
		point(1, "2024-01-03", 120),
	})

	if p, ok := frame.PriceAt(day("2024-01-02")); !ok || p != 100 {
		t.Fatalf("expected filled price 100, got %v ok=%v", p, ok)
	}
	if _, ok := frame.PriceAt(day("2023-12-31")); ok {
		t.Fatalf("expected miss before frame start")
	}
	if _, ok := frame.PriceAt(day("2024-01-04")); ok {
		t.Fatalf("expected miss after frame end")
	}
}

func TestBuildReturnSeries(t *testing.T) {
	frame := BuildPriceFrame(1, []models.PricePoint{
		point(1, "2024-01-01", 100),
		point(1, "2024-01-02", 110),
		point(1, "2024-01-03", 121),
	})
	returns := BuildReturnSeries(frame)

	if returns.Len() != 2 {
		t.Fatalf("expected 2 returns, got %d", returns.Len())
	}
	want := math.Log(110.0 / 100.0)
	if math.Abs(returns.Values[0]-want) > 1e-12 {
		t.Fatalf("expected log return %v, got %v", want, returns.Values[0])
	}
	// Return dates align with the day the return realizes on.
	if !returns.Dates[0].Equal(day("2024-01-02")) {
		t.Fatalf("unexpected return date %v", returns.Dates[0])
	}
}

func TestBuildReturnSeriesTooShort(t *testing.T) {
	frame := BuildPriceFrame(1, []models.PricePoint{point(1, "2024-01-01", 100)})
	if got := BuildReturnSeries(frame).Len(); got != 0 {
		t.Fatalf("expected empty series, got %d", got)
	}
}

func TestBuildCovariatesExtendsPastHistory(t *testing.T) {
	frame := BuildPriceFrame(1, []models.PricePoint{
		point(1, "2024-01-01", 100),
		point(1, "2024-01-10", 110),
	})
	cov := BuildCovariates(frame, 7)

	if len(cov.Rows) != frame.Len()+7 {
		t.Fatalf("expected %d rows, got %d", frame.Len()+7, len(cov.Rows))
	}
	row, ok := cov.At(util.AddDays(frame.LastDate(), 7))
	if !ok {
		t.Fatalf("expected covariates for last horizon day")
	}
	if len(row) != NumCovariates {
		t.Fatalf("expected %d features, got %d", NumCovariates, len(row))
	}
	for i := 0; i < 2; i++ {
		if row[i] < -1 || row[i] > 1 {
			t.Fatalf("cyclic feature out of range: %v", row)
		}
	}
	if _, ok := cov.At(util.AddDays(frame.LastDate(), 8)); ok {
		t.Fatalf("expected miss beyond horizon")
	}
}
