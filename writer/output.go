package writer

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"macroflow/config"
	"macroflow/logger"
	"macroflow/models"
)

// Columns is the output column contract. The parquet archive and the csv
// snapshot publish exactly these names in exactly this order.
var Columns = []string{"run_date", "year", "month", "indicator_value", "yoy_rate", "mom_rate", "trend_3m"}

// parquetRecord mirrors the column contract for the archival file. Rates
// are optional columns so a missing rate stays distinguishable from zero.
type parquetRecord struct {
	RunDate        string   `parquet:"name=run_date, type=BYTE_ARRAY, convertedtype=UTF8"`
	Year           int32    `parquet:"name=year, type=INT32"`
	Month          int32    `parquet:"name=month, type=INT32"`
	IndicatorValue float64  `parquet:"name=indicator_value, type=DOUBLE"`
	YoY            *float64 `parquet:"name=yoy_rate, type=DOUBLE, repetitiontype=OPTIONAL"`
	MoM            *float64 `parquet:"name=mom_rate, type=DOUBLE, repetitiontype=OPTIONAL"`
	Trend3M        *float64 `parquet:"name=trend_3m, type=DOUBLE, repetitiontype=OPTIONAL"`
}

// memoryFile implements the ParquetFile interface for in-memory writing.
type memoryFile struct {
	buffer *bytes.Buffer
}

func newMemoryFile() *memoryFile {
	return &memoryFile{buffer: &bytes.Buffer{}}
}

func (mf *memoryFile) Create(name string) (source.ParquetFile, error) {
	return mf, nil
}

func (mf *memoryFile) Open(name string) (source.ParquetFile, error) {
	return mf, nil
}

func (mf *memoryFile) Seek(offset int64, whence int) (int64, error) {
	return int64(mf.buffer.Len()), nil
}

func (mf *memoryFile) Read(b []byte) (int, error) {
	return mf.buffer.Read(b)
}

func (mf *memoryFile) Write(b []byte) (int, error) {
	return mf.buffer.Write(b)
}

func (mf *memoryFile) Close() error {
	return nil
}

func (mf *memoryFile) Bytes() []byte {
	return mf.buffer.Bytes()
}

// BuildBatch maps rate observations onto the output column contract. Every
// record of a run carries the same run date.
func BuildBatch(sourceName string, runTime time.Time, rates []models.RateObservation) models.OutputBatch {
	runDate := runTime.UTC().Format("2006-01-02")

	records := make([]models.OutputRecord, len(rates))
	for i, r := range rates {
		records[i] = models.OutputRecord{
			RunDate:        runDate,
			Year:           r.Date.Year(),
			Month:          int(r.Date.Month()),
			IndicatorValue: r.Value,
			YoY:            r.YoY,
			MoM:            r.MoM,
			Trend3M:        r.Trend3M,
		}
	}

	return models.OutputBatch{
		RunID:       uuid.New().String(),
		Source:      sourceName,
		GeneratedAt: runTime.UTC(),
		Records:     records,
	}
}

// Result reports where one run's output landed.
type Result struct {
	ArchivePath   string
	SnapshotPath  string
	S3Key         string
	ArchiveBytes  int
	SnapshotBytes int
}

// OutputWriter persists one batch per run: a timestamped parquet file in
// the archive directory, the fixed-name csv snapshot replaced atomically,
// and optionally an S3 mirror of the archive.
type OutputWriter struct {
	cfg *config.Config
	s3  *s3Mirror
	log *logger.Entry
}

func NewOutputWriter(cfg *config.Config) (*OutputWriter, error) {
	w := &OutputWriter{
		cfg: cfg,
		log: logger.GetLogger().WithComponent("writer"),
	}

	if cfg.Storage.S3.Enabled {
		mirror, err := newS3Mirror(cfg)
		if err != nil {
			return nil, err
		}
		w.s3 = mirror
	}

	w.log.WithFields(logger.Fields{
		"archive_dir":   cfg.Storage.Local.ArchiveDir,
		"snapshot_dir":  cfg.Storage.Local.SnapshotDir,
		"snapshot_file": cfg.Storage.Local.SnapshotFile,
		"compression":   cfg.Storage.Local.Compression,
		"s3_mirror":     cfg.Storage.S3.Enabled,
	}).Info("output writer initialized")

	return w, nil
}

// Write persists the batch. Both encodings are produced before any file is
// touched, so an encoding failure leaves the filesystem unchanged and a
// failed replace leaves the previous snapshot intact.
func (w *OutputWriter) Write(ctx context.Context, batch models.OutputBatch) (*Result, error) {
	if len(batch.Records) == 0 {
		return nil, fmt.Errorf("refusing to write empty batch %s", batch.RunID)
	}

	log := w.log.WithFields(logger.Fields{
		"operation": "write",
		"run_id":    batch.RunID,
		"source":    batch.Source,
		"records":   len(batch.Records),
	})
	log.Info("writing output batch")

	start := time.Now()

	parquetData, err := encodeParquet(batch.Records, w.cfg.Storage.Local.Compression)
	if err != nil {
		return nil, err
	}
	csvData, err := encodeCSV(batch.Records)
	if err != nil {
		return nil, err
	}

	archiveName := fmt.Sprintf("inflation_%s_%s.parquet",
		batch.Source, batch.GeneratedAt.UTC().Format("20060102150405"))
	archivePath := filepath.Join(w.cfg.Storage.Local.ArchiveDir, archiveName)
	if err := writeFileAtomic(archivePath, parquetData); err != nil {
		return nil, err
	}
	logger.IncrementWrite("archive", len(parquetData))

	snapshotPath := filepath.Join(w.cfg.Storage.Local.SnapshotDir, w.cfg.Storage.Local.SnapshotFile)
	if err := writeFileAtomic(snapshotPath, csvData); err != nil {
		return nil, err
	}
	logger.IncrementWrite("snapshot", len(csvData))

	result := &Result{
		ArchivePath:   archivePath,
		SnapshotPath:  snapshotPath,
		ArchiveBytes:  len(parquetData),
		SnapshotBytes: len(csvData),
	}

	if w.s3 != nil {
		key, err := w.s3.uploadArchive(ctx, batch, archiveName, parquetData)
		if err != nil {
			return nil, err
		}
		result.S3Key = key
	}

	logger.LogPerformanceEntry(log, "writer", "write_batch", time.Since(start), logger.Fields{
		"archive_bytes":  result.ArchiveBytes,
		"snapshot_bytes": result.SnapshotBytes,
	})
	logger.LogDataFlowEntry(log, "rates", "storage", len(batch.Records), "records")

	log.WithFields(logger.Fields{
		"archive_path":  result.ArchivePath,
		"snapshot_path": result.SnapshotPath,
	}).Info("output batch written")

	return result, nil
}

func encodeParquet(records []models.OutputRecord, compression string) ([]byte, error) {
	fw := newMemoryFile()

	pw, err := writer.NewParquetWriter(fw, new(parquetRecord), 4)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}

	switch compression {
	case "snappy":
		pw.CompressionType = parquet.CompressionCodec_SNAPPY
	case "gzip":
		pw.CompressionType = parquet.CompressionCodec_GZIP
	default:
		pw.CompressionType = parquet.CompressionCodec_UNCOMPRESSED
	}

	for _, rec := range records {
		row := parquetRecord{
			RunDate:        rec.RunDate,
			Year:           int32(rec.Year),
			Month:          int32(rec.Month),
			IndicatorValue: rec.IndicatorValue,
			YoY:            rec.YoY,
			MoM:            rec.MoM,
			Trend3M:        rec.Trend3M,
		}
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("failed to finalize parquet writing: %w", err)
	}

	return fw.Bytes(), nil
}

func encodeCSV(records []models.OutputRecord) ([]byte, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)

	if err := cw.Write(Columns); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, rec := range records {
		row := []string{
			rec.RunDate,
			strconv.Itoa(rec.Year),
			strconv.Itoa(rec.Month),
			formatValue(rec.IndicatorValue),
			formatRate(rec.YoY),
			formatRate(rec.MoM),
			formatRate(rec.Trend3M),
		}
		if err := cw.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush csv: %w", err)
	}

	return buf.Bytes(), nil
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// formatRate renders a nullable rate; nil becomes an empty cell.
func formatRate(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// writeFileAtomic writes data to a temp file in the destination directory,
// syncs it and renames it over the target, so the target is never partial.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmp.Name(), err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
