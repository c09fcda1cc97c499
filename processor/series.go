package processor

import (
	"sort"

	"macroflow/logger"
	"macroflow/models"
)

const monthFormat = "2006-01"

// BuildSeries is the temporal integrity stage between normalization and
// rate calculation. Candidates with a missing date or value are dropped
// with a warning. Survivors are sorted by month ascending and duplicate
// months collapse to the occurrence that arrived first.
func BuildSeries(sourceName string, candidates []models.Candidate) ([]models.Observation, error) {
	log := logger.GetLogger().WithComponent("processor").WithFields(logger.Fields{
		"operation": "build_series",
		"source":    sourceName,
	})

	series := make([]models.Observation, 0, len(candidates))
	dropped := 0
	for _, c := range candidates {
		if !c.Valid() {
			dropped++
			continue
		}
		series = append(series, models.Observation{Date: *c.Date, Value: *c.Value})
	}

	if dropped > 0 {
		logger.IncrementDropped(dropped)
		log.WithFields(logger.Fields{
			"rows_dropped": dropped,
			"rows_kept":    len(series),
		}).Warn("dropped candidates with missing or unparseable fields")
	}

	if len(series) == 0 {
		return nil, models.ErrEmptySeries
	}

	// The stable sort keeps arrival order within a month, so collapsing
	// each run of equal months to its head keeps the first occurrence.
	sort.SliceStable(series, func(i, j int) bool {
		return series[i].Date.Before(series[j].Date)
	})

	deduped := series[:1]
	removed := 0
	for _, obs := range series[1:] {
		if obs.Date.Equal(deduped[len(deduped)-1].Date) {
			removed++
			continue
		}
		deduped = append(deduped, obs)
	}

	if removed > 0 {
		log.WithFields(logger.Fields{"duplicates_removed": removed}).Warn("collapsed duplicate months")
	}

	logger.IncrementObservations(len(deduped))
	logger.LogDataFlowEntry(log, "candidates", "series", len(deduped), "observations")

	log.WithFields(logger.Fields{
		"observations": len(deduped),
		"first_month":  deduped[0].Date.Format(monthFormat),
		"last_month":   deduped[len(deduped)-1].Date.Format(monthFormat),
	}).Info("series assembled")

	return deduped, nil
}
