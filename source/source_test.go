package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"macroflow/config"
	"macroflow/models"
)

// testFetchConfig returns the shared HTTP layer settings used by adapter
// tests.
func testFetchConfig() config.FetchConfig {
	return config.FetchConfig{
		MetadataTimeout: 2 * time.Second,
		DownloadTimeout: 5 * time.Second,
		UserAgent:       "macroflow-test/0",
		RateLimit:       config.RateLimitConfig{RequestsPerSecond: 100, BurstSize: 10},
		ConnectionPool:  config.ConnectionPoolConfig{MaxIdleConns: 2, MaxConnsPerHost: 2, IdleConnTimeout: time.Second},
	}
}

func testSourcesConfig(baseURL string) config.SourcesConfig {
	return config.SourcesConfig{
		StatCan: config.StatCanConfig{
			BaseURL:   baseURL,
			ProductID: "18100004",
			Language:  "en",
			Geography: "Canada",
			Category:  "All-items",
		},
		BankOfCanada: config.BankOfCanadaConfig{
			BaseURL: baseURL,
			Series:  "V41690973",
		},
		FRED: config.FREDConfig{
			BaseURL: baseURL,
			Series:  "CANCPIALLMINMEI",
			APIKey:  "secret",
		},
	}
}

func TestNewKnownSources(t *testing.T) {
	cfg := &config.Config{
		Fetch:   testFetchConfig(),
		Sources: testSourcesConfig("https://example.com"),
	}

	for _, name := range []string{"statcan", "bankofcanada", "fred"} {
		src, err := New(cfg, name)
		if err != nil {
			t.Fatalf("New(%q): %v", name, err)
		}
		if src.Name() != name {
			t.Errorf("source reports name %q, want %q", src.Name(), name)
		}
	}
}

func TestNewUnknownSource(t *testing.T) {
	cfg := &config.Config{
		Fetch:   testFetchConfig(),
		Sources: testSourcesConfig("https://example.com"),
	}

	if _, err := New(cfg, "imf"); err == nil {
		t.Fatal("expected error for unknown source")
	}
}

func TestNewFREDWithoutAPIKey(t *testing.T) {
	cfg := &config.Config{
		Fetch:   testFetchConfig(),
		Sources: testSourcesConfig("https://example.com"),
	}
	cfg.Sources.FRED.APIKey = ""

	if _, err := New(cfg, "fred"); err == nil {
		t.Fatal("expected error for missing api key")
	}
}

func TestNewStatCanBadProductID(t *testing.T) {
	cfg := &config.Config{
		Fetch:   testFetchConfig(),
		Sources: testSourcesConfig("https://example.com"),
	}
	cfg.Sources.StatCan.ProductID = "181-0004"

	if _, err := New(cfg, "statcan"); err == nil {
		t.Fatal("expected error for malformed product id")
	}
}

func TestGetTransportErrorOnStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	clients := newHTTPClients(testFetchConfig())
	_, err := clients.get(context.Background(), clients.metadata, "statcan", srv.URL, srv.URL)
	if err == nil {
		t.Fatal("expected error for 503 response")
	}

	var terr *models.TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TransportError, got %T: %v", err, err)
	}
	if terr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("unexpected status code: %d", terr.StatusCode)
	}
}

func TestGetSetsUserAgent(t *testing.T) {
	var agent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent = r.Header.Get("User-Agent")
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	clients := newHTTPClients(testFetchConfig())
	body, err := clients.get(context.Background(), clients.metadata, "statcan", srv.URL, srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(body) != "ok" {
		t.Errorf("unexpected body: %q", body)
	}
	if !strings.HasPrefix(agent, "macroflow-test/") {
		t.Errorf("user agent not applied: %q", agent)
	}
}
