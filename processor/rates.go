package processor

import (
	"fmt"

	"macroflow/logger"
	"macroflow/models"
)

// Lags are positions in the series, not calendar distances; a gap in the
// published months shortens the window rather than invalidating it. The
// trend lag spans the endpoints of a 3-observation window.
const (
	momLag   = 1
	yoyLag   = 12
	trendLag = 2
)

// CalculateRates derives month-over-month, year-over-year and 3-observation
// trend changes for every observation. The input must already be strictly
// ascending by month; anything else is a violated precondition, not data to
// repair here.
func CalculateRates(sourceName string, series []models.Observation) ([]models.RateObservation, error) {
	for i := 1; i < len(series); i++ {
		if !series[i-1].Date.Before(series[i].Date) {
			return nil, &models.PreconditionError{
				Stage: "rates",
				Detail: fmt.Sprintf("series not strictly ascending at index %d (%s >= %s)",
					i, series[i-1].Date.Format(monthFormat), series[i].Date.Format(monthFormat)),
			}
		}
	}

	out := make([]models.RateObservation, len(series))
	for i, obs := range series {
		out[i] = models.RateObservation{
			Observation: obs,
			MoM:         lagChange(series, i, momLag),
			YoY:         lagChange(series, i, yoyLag),
			Trend3M:     lagChange(series, i, trendLag),
		}
	}

	logger.GetLogger().WithComponent("processor").WithFields(logger.Fields{
		"operation":    "calculate_rates",
		"source":       sourceName,
		"observations": len(out),
	}).Info("rates calculated")

	return out, nil
}

// lagChange returns the percent change against the observation lag
// positions earlier, or nil when there is not enough history or the base
// value is zero.
func lagChange(series []models.Observation, i, lag int) *float64 {
	if i < lag {
		return nil
	}
	base := series[i-lag].Value
	if base == 0 {
		return nil
	}
	pct := (series[i].Value/base - 1) * 100
	return &pct
}
