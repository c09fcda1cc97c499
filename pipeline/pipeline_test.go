package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"macroflow/config"
	"macroflow/models"
)

func testPipelineConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()

	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Macroflow = config.MacroflowConfig{Name: "macroflow", Version: "1.0.0", DefaultSource: "fred"}
	cfg.Fetch = config.FetchConfig{
		MetadataTimeout: 2 * time.Second,
		DownloadTimeout: 5 * time.Second,
		UserAgent:       "macroflow-test/0",
		RateLimit:       config.RateLimitConfig{RequestsPerSecond: 100, BurstSize: 10},
		ConnectionPool:  config.ConnectionPoolConfig{MaxIdleConns: 2, MaxConnsPerHost: 2, IdleConnTimeout: time.Second},
	}
	cfg.Sources.FRED = config.FREDConfig{BaseURL: baseURL, Series: "CANCPIALLMINMEI", APIKey: "secret"}
	cfg.Storage.Local = config.LocalConfig{
		ArchiveDir:   filepath.Join(dir, "processed"),
		SnapshotDir:  filepath.Join(dir, "outputs"),
		SnapshotFile: "inflation_data.csv",
		Compression:  "none",
	}
	return cfg
}

// fredDocument builds a monthly observation document starting 2024-01 with
// values 100, 100.5, 101, ...
func fredDocument(months int) string {
	var b strings.Builder
	b.WriteString(`{"observations":[`)
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < months; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		d := start.AddDate(0, i, 0)
		fmt.Fprintf(&b, `{"date":%q,"value":"%.1f"}`, d.Format("2006-01-02"), 100+0.5*float64(i))
	}
	b.WriteString("]}")
	return b.String()
}

func TestPipelineRunEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(fredDocument(14)))
	}))
	defer srv.Close()

	cfg := testPipelineConfig(t, srv.URL)

	p, err := New(cfg, "fred")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	summary, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.Source != "fred" {
		t.Errorf("unexpected source: %q", summary.Source)
	}
	if summary.Records != 14 {
		t.Errorf("expected 14 records, got %d", summary.Records)
	}
	if summary.LatestValue != 106.5 {
		t.Errorf("unexpected latest value: %v", summary.LatestValue)
	}
	if !summary.LatestMonth.Equal(time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected latest month: %v", summary.LatestMonth)
	}
	if summary.LatestYoY == nil {
		t.Error("14 observations should yield a latest YoY")
	}
	if summary.AvgMoM12 == nil || summary.AvgYoY12 == nil {
		t.Error("12-month averages should be set")
	}
	if summary.S3Key != "" {
		t.Errorf("mirror disabled, expected empty S3 key, got %q", summary.S3Key)
	}

	snapshot, err := os.ReadFile(summary.SnapshotPath)
	if err != nil {
		t.Fatalf("snapshot missing: %v", err)
	}
	if !strings.HasPrefix(string(snapshot), "run_date,year,month,indicator_value,yoy_rate,mom_rate,trend_3m") {
		t.Error("snapshot missing the column header")
	}

	archives, err := os.ReadDir(cfg.Storage.Local.ArchiveDir)
	if err != nil {
		t.Fatalf("read archive dir: %v", err)
	}
	if len(archives) != 1 {
		t.Fatalf("expected 1 archive file, got %d", len(archives))
	}
	name := archives[0].Name()
	if !strings.HasPrefix(name, "inflation_fred_") || !strings.HasSuffix(name, ".parquet") {
		t.Errorf("unexpected archive name: %q", name)
	}
}

func TestPipelineRunNoUsableData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"observations":[{"date":"2024-01-01","value":"."},{"date":"2024-02-01","value":"."}]}`))
	}))
	defer srv.Close()

	cfg := testPipelineConfig(t, srv.URL)

	p, err := New(cfg, "fred")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = p.Run(context.Background())
	if !errors.Is(err, models.ErrEmptySeries) {
		t.Fatalf("expected ErrEmptySeries, got %v", err)
	}

	// A no-data run must not leave files behind.
	if _, err := os.Stat(cfg.Storage.Local.ArchiveDir); !os.IsNotExist(err) {
		t.Error("archive directory should not exist after a no-data run")
	}
	if _, err := os.Stat(cfg.Storage.Local.SnapshotDir); !os.IsNotExist(err) {
		t.Error("snapshot directory should not exist after a no-data run")
	}
}

func TestPipelineRunUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := testPipelineConfig(t, srv.URL)

	p, err := New(cfg, "fred")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = p.Run(context.Background())
	if err == nil {
		t.Fatal("expected transport error")
	}
	var terr *models.TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TransportError, got %T: %v", err, err)
	}

	if _, err := os.Stat(cfg.Storage.Local.ArchiveDir); !os.IsNotExist(err) {
		t.Error("archive directory should not exist after a failed run")
	}
}

func TestNewUnknownSource(t *testing.T) {
	cfg := testPipelineConfig(t, "https://example.com")

	if _, err := New(cfg, "imf"); err == nil {
		t.Fatal("expected error for unknown source")
	}
}
