package processor

import (
	"errors"
	"math"
	"testing"
	"time"

	"macroflow/models"
)

func monthlySeries(start time.Time, values []float64) []models.Observation {
	series := make([]models.Observation, len(values))
	for i, v := range values {
		series[i] = models.Observation{Date: start.AddDate(0, i, 0), Value: v}
	}
	return series
}

func approx(got *float64, want float64) bool {
	return got != nil && math.Abs(*got-want) < 1e-9
}

func TestCalculateRatesWindows(t *testing.T) {
	values := []float64{100, 100.5, 101, 101.5, 102, 102.5, 103, 103.5, 104, 104.5, 105, 105.5, 106}
	series := monthlySeries(month(2024, time.January), values)

	rates, err := CalculateRates("statcan", series)
	if err != nil {
		t.Fatalf("CalculateRates: %v", err)
	}
	if len(rates) != 13 {
		t.Fatalf("expected 13 rate observations, got %d", len(rates))
	}

	// No history at the start of the series.
	if rates[0].MoM != nil || rates[0].YoY != nil || rates[0].Trend3M != nil {
		t.Error("first observation should carry no rates")
	}
	if rates[1].Trend3M != nil {
		t.Error("second observation should carry no trend")
	}

	if !approx(rates[1].MoM, 0.5) {
		t.Errorf("MoM at index 1 = %v, want 0.5", rates[1].MoM)
	}
	if !approx(rates[2].Trend3M, 1.0) {
		t.Errorf("Trend3M at index 2 = %v, want 1.0", rates[2].Trend3M)
	}

	// YoY needs twelve prior observations, so it first appears at index 12.
	for i := 0; i < 12; i++ {
		if rates[i].YoY != nil {
			t.Errorf("YoY at index %d = %v, want nil", i, *rates[i].YoY)
		}
	}
	if !approx(rates[12].YoY, 6.0) {
		t.Errorf("YoY at index 12 = %v, want 6.0", rates[12].YoY)
	}
	if rates[12].MoM == nil || rates[12].Trend3M == nil {
		t.Error("latest observation should carry MoM and trend")
	}
}

func TestCalculateRatesZeroBase(t *testing.T) {
	series := monthlySeries(month(2024, time.January), []float64{0, 100, 200})

	rates, err := CalculateRates("statcan", series)
	if err != nil {
		t.Fatalf("CalculateRates: %v", err)
	}

	if rates[1].MoM != nil {
		t.Errorf("zero base should yield nil MoM, got %v", *rates[1].MoM)
	}
	if rates[2].Trend3M != nil {
		t.Errorf("zero base should yield nil trend, got %v", *rates[2].Trend3M)
	}
	if !approx(rates[2].MoM, 100.0) {
		t.Errorf("MoM at index 2 = %v, want 100.0", rates[2].MoM)
	}
}

func TestCalculateRatesGapsArePositional(t *testing.T) {
	feb := month(2024, time.February)
	series := []models.Observation{
		{Date: month(2024, time.January), Value: 99},
		{Date: feb, Value: 100},
		// March missing from the published series.
		{Date: month(2024, time.April), Value: 102},
	}

	rates, err := CalculateRates("statcan", series)
	if err != nil {
		t.Fatalf("CalculateRates: %v", err)
	}

	// The lag counts observations, so April compares against February.
	if !approx(rates[2].MoM, 2.0) {
		t.Errorf("MoM across the gap = %v, want 2.0", rates[2].MoM)
	}
}

func TestCalculateRatesNonAscending(t *testing.T) {
	cases := []struct {
		name   string
		series []models.Observation
	}{
		{
			name: "descending",
			series: []models.Observation{
				{Date: month(2024, time.February), Value: 101},
				{Date: month(2024, time.January), Value: 100},
			},
		},
		{
			name: "duplicate month",
			series: []models.Observation{
				{Date: month(2024, time.January), Value: 100},
				{Date: month(2024, time.January), Value: 101},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := CalculateRates("statcan", tc.series)
			if err == nil {
				t.Fatal("expected precondition error")
			}
			var perr *models.PreconditionError
			if !errors.As(err, &perr) {
				t.Fatalf("expected PreconditionError, got %T: %v", err, err)
			}
			if perr.Stage != "rates" {
				t.Errorf("unexpected stage: %q", perr.Stage)
			}
		})
	}
}

func TestCalculateRatesEmptySeries(t *testing.T) {
	rates, err := CalculateRates("statcan", nil)
	if err != nil {
		t.Fatalf("CalculateRates: %v", err)
	}
	if len(rates) != 0 {
		t.Errorf("expected no rates, got %d", len(rates))
	}
}
