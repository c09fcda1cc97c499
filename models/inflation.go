package models

import (
	"time"
)

// RawPayload represents the unmodified body fetched from a provider,
// tagged with provenance for logging and archive naming.
type RawPayload struct {
	Source    string
	Data      []byte
	FetchedAt time.Time
}

// Candidate represents one observation as mapped from a provider payload.
// A nil Date or Value records a field that was missing, a provider
// missing-value sentinel, or unparseable. Mapping never drops rows; the
// integrity stage decides what survives.
type Candidate struct {
	Date  *time.Time
	Value *float64
}

// Valid reports whether both fields parsed.
func (c Candidate) Valid() bool {
	return c.Date != nil && c.Value != nil
}

// Observation represents one canonical monthly data point. Date is the
// first instant of its month in UTC.
type Observation struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// RateObservation represents an observation with its derived rates. A nil
// rate means insufficient history or an undefined ratio, never zero.
type RateObservation struct {
	Observation
	MoM     *float64 `json:"mom_rate"`
	YoY     *float64 `json:"yoy_rate"`
	Trend3M *float64 `json:"trend_3m"`
}

// OutputRecord represents a single formatted output row. Columns, in order:
// run_date, year, month, indicator_value, yoy_rate, mom_rate, trend_3m.
type OutputRecord struct {
	RunDate        string   `json:"run_date"`
	Year           int      `json:"year"`
	Month          int      `json:"month"`
	IndicatorValue float64  `json:"indicator_value"`
	YoY            *float64 `json:"yoy_rate"`
	MoM            *float64 `json:"mom_rate"`
	Trend3M        *float64 `json:"trend_3m"`
}

// OutputBatch represents the complete result of one pipeline run.
type OutputBatch struct {
	RunID       string         `json:"run_id"`
	Source      string         `json:"source"`
	GeneratedAt time.Time      `json:"generated_at"`
	Records     []OutputRecord `json:"records"`
}
