package util

import (
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	got, err := ParseDate("2024-10-10")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("unexpected date %v", got)
	}
}

func TestParseDateDefault(t *testing.T) {
	def := time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC)
	if got := ParseDateDefault("", def); !got.Equal(def) {
		t.Fatalf("expected default for empty input")
	}
	if got := ParseDateDefault("not-a-date", def); !got.Equal(def) {
		t.Fatalf("expected default for invalid input")
	}
}

func TestDateOnly(t *testing.T) {
	in := time.Date(2024, 10, 10, 17, 45, 3, 12, time.UTC)
	got := DateOnly(in)
	if got.Hour() != 0 || got.Minute() != 0 || got.Second() != 0 {
		t.Fatalf("expected midnight, got %v", got)
	}
	if FormatDate(got) != "2024-10-10" {
		t.Fatalf("unexpected date %v", got)
	}
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2024, 10, 10, 23, 0, 0, 0, time.UTC)
	b := time.Date(2024, 10, 15, 1, 0, 0, 0, time.UTC)
	if got := DaysBetween(a, b); got != 5 {
		t.Fatalf("expected 5 days, got %d", got)
	}
	if got := DaysBetween(b, a); got != -5 {
		t.Fatalf("expected -5 days, got %d", got)
	}
}

func TestClampInt(t *testing.T) {
	cases := []struct {
		v, lo, hi, want int
	}{
		{5, 1, 10, 5},
		{0, 1, 10, 1},
		{11, 1, 10, 10},
	}
	for _, c := range cases {
		if got := ClampInt(c.v, c.lo, c.hi); got != c.want {
			t.Fatalf("ClampInt(%d,%d,%d) = %d, want %d", c.v, c.lo, c.hi, got, c.want)
		}
	}
}
