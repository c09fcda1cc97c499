package processor

import (
	"errors"
	"testing"
	"time"

	"macroflow/models"
)

func month(y int, m time.Month) time.Time {
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

func candidate(date time.Time, value float64) models.Candidate {
	return models.Candidate{Date: &date, Value: &value}
}

func TestBuildSeriesSortsDropsAndDedups(t *testing.T) {
	jan := month(2024, time.January)
	feb := month(2024, time.February)
	mar := month(2024, time.March)

	candidates := []models.Candidate{
		candidate(mar, 102),
		{Date: &feb, Value: nil},
		candidate(jan, 100),
		candidate(feb, 101),
		candidate(jan, 999),
		{Date: nil, Value: nil},
	}

	series, err := BuildSeries("statcan", candidates)
	if err != nil {
		t.Fatalf("BuildSeries: %v", err)
	}
	if len(series) != 3 {
		t.Fatalf("expected 3 observations, got %d", len(series))
	}

	want := []models.Observation{
		{Date: jan, Value: 100},
		{Date: feb, Value: 101},
		{Date: mar, Value: 102},
	}
	for i, obs := range series {
		if !obs.Date.Equal(want[i].Date) {
			t.Errorf("index %d: date %v, want %v", i, obs.Date, want[i].Date)
		}
		if obs.Value != want[i].Value {
			t.Errorf("index %d: value %v, want %v", i, obs.Value, want[i].Value)
		}
	}
}

func TestBuildSeriesDuplicateKeepsFirstArrival(t *testing.T) {
	jan := month(2024, time.January)

	series, err := BuildSeries("fred", []models.Candidate{
		candidate(jan, 158.3),
		candidate(jan, 170.0),
	})
	if err != nil {
		t.Fatalf("BuildSeries: %v", err)
	}
	if len(series) != 1 {
		t.Fatalf("expected 1 observation, got %d", len(series))
	}
	if series[0].Value != 158.3 {
		t.Errorf("duplicate month should keep the first arrival, got %v", series[0].Value)
	}
}

func TestBuildSeriesEmptyInput(t *testing.T) {
	_, err := BuildSeries("fred", nil)
	if !errors.Is(err, models.ErrEmptySeries) {
		t.Fatalf("expected ErrEmptySeries, got %v", err)
	}
}

func TestBuildSeriesAllInvalid(t *testing.T) {
	jan := month(2024, time.January)
	v := 158.3

	_, err := BuildSeries("fred", []models.Candidate{
		{Date: &jan, Value: nil},
		{Date: nil, Value: &v},
		{},
	})
	if !errors.Is(err, models.ErrEmptySeries) {
		t.Fatalf("expected ErrEmptySeries, got %v", err)
	}
}
