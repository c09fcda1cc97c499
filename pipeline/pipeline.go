package pipeline

import (
	"context"
	"time"

	"macroflow/config"
	"macroflow/logger"
	"macroflow/models"
	"macroflow/processor"
	"macroflow/source"
	"macroflow/writer"
)

// Pipeline runs one synchronous ingestion pass: fetch, normalize, series
// integrity, rate derivation, persistence. The source is selected once at
// construction and every stage runs in the caller's goroutine.
type Pipeline struct {
	cfg    *config.Config
	source source.Source
	writer *writer.OutputWriter
	log    *logger.Entry
}

// New wires the named source and the output writer. sourceName decides the
// provider for the lifetime of the pipeline.
func New(cfg *config.Config, sourceName string) (*Pipeline, error) {
	src, err := source.New(cfg, sourceName)
	if err != nil {
		return nil, err
	}

	w, err := writer.NewOutputWriter(cfg)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:    cfg,
		source: src,
		writer: w,
		log:    logger.GetLogger().WithComponent("pipeline"),
	}

	p.log.WithFields(logger.Fields{"source": src.Name()}).Info("pipeline initialized")
	return p, nil
}

// Summary carries the figures for the end-of-run console report.
type Summary struct {
	RunID        string
	Source       string
	Records      int
	LatestMonth  time.Time
	LatestValue  float64
	LatestYoY    *float64
	LatestMoM    *float64
	LatestTrend  *float64
	AvgYoY12     *float64
	AvgMoM12     *float64
	ArchivePath  string
	SnapshotPath string
	S3Key        string
	Duration     time.Duration
}

// Run executes one ingestion pass. Stage errors abort the run and propagate
// unchanged, so callers can distinguish the empty-series case from real
// failures.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	log := p.log.WithFields(logger.Fields{
		"operation": "run",
		"source":    p.source.Name(),
	})
	log.Info("pipeline run started")

	start := time.Now()

	raw, err := p.source.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	log.WithFields(logger.Fields{"bytes": len(raw.Data)}).Info("payload fetched")

	candidates, err := p.source.Normalize(raw)
	if err != nil {
		return nil, err
	}
	logger.IncrementNormalized(len(candidates))
	log.WithFields(logger.Fields{"candidates": len(candidates)}).Info("payload normalized")

	series, err := processor.BuildSeries(p.source.Name(), candidates)
	if err != nil {
		return nil, err
	}

	rates, err := processor.CalculateRates(p.source.Name(), series)
	if err != nil {
		return nil, err
	}

	batch := writer.BuildBatch(p.source.Name(), time.Now().UTC(), rates)
	result, err := p.writer.Write(ctx, batch)
	if err != nil {
		return nil, err
	}

	summary := buildSummary(batch, rates, result, time.Since(start))

	logger.LogPerformanceEntry(log, "pipeline", "run", summary.Duration, logger.Fields{
		"records": summary.Records,
	})
	log.WithFields(logger.Fields{
		"run_id":       summary.RunID,
		"records":      summary.Records,
		"latest_month": summary.LatestMonth.Format("2006-01"),
		"duration_ms":  summary.Duration.Milliseconds(),
	}).Info("pipeline run completed")

	return summary, nil
}

func buildSummary(batch models.OutputBatch, rates []models.RateObservation, result *writer.Result, took time.Duration) *Summary {
	latest := rates[len(rates)-1]

	return &Summary{
		RunID:        batch.RunID,
		Source:       batch.Source,
		Records:      len(batch.Records),
		LatestMonth:  latest.Date,
		LatestValue:  latest.Value,
		LatestYoY:    latest.YoY,
		LatestMoM:    latest.MoM,
		LatestTrend:  latest.Trend3M,
		AvgYoY12:     tailAverage(rates, 12, func(r models.RateObservation) *float64 { return r.YoY }),
		AvgMoM12:     tailAverage(rates, 12, func(r models.RateObservation) *float64 { return r.MoM }),
		ArchivePath:  result.ArchivePath,
		SnapshotPath: result.SnapshotPath,
		S3Key:        result.S3Key,
		Duration:     took,
	}
}

// tailAverage averages the non-nil picked rates over the last n
// observations; nil when none are set in that window.
func tailAverage(rates []models.RateObservation, n int, pick func(models.RateObservation) *float64) *float64 {
	start := len(rates) - n
	if start < 0 {
		start = 0
	}

	sum := 0.0
	count := 0
	for _, r := range rates[start:] {
		if v := pick(r); v != nil {
			sum += *v
			count++
		}
	}
	if count == 0 {
		return nil
	}

	avg := sum / float64(count)
	return &avg
}
