package source

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/time/rate"

	"macroflow/config"
	"macroflow/logger"
	"macroflow/models"
)

// Source is one indicator provider. Fetch retrieves the provider's raw
// payload; Normalize maps it into canonical observation candidates without
// sorting, deduplicating or dropping rows.
type Source interface {
	Name() string
	Fetch(ctx context.Context) (models.RawPayload, error)
	Normalize(raw models.RawPayload) ([]models.Candidate, error)
}

// New builds the adapter for the named provider. This switch is the only
// place a source name is dispatched on; afterwards callers hold the Source
// value for the rest of the run.
func New(cfg *config.Config, name string) (Source, error) {
	clients := newHTTPClients(cfg.Fetch)
	switch name {
	case "statcan":
		return newStatCan(cfg.Sources.StatCan, clients)
	case "bankofcanada":
		return newBankOfCanada(cfg.Sources.BankOfCanada, clients)
	case "fred":
		return newFRED(cfg.Sources.FRED, clients)
	default:
		return nil, fmt.Errorf("unknown source '%s'", name)
	}
}

// httpClients carries the shared HTTP layer for all adapters: a pooled
// transport behind two clients with different deadlines, plus a request
// rate limiter. Metadata and observation-stream calls use the short
// deadline; bulk table downloads use the long one.
type httpClients struct {
	metadata *http.Client
	download *http.Client
	limiter  *rate.Limiter
}

func newHTTPClients(cfg config.FetchConfig) *httpClients {
	transport := &http.Transport{
		MaxIdleConns:       cfg.ConnectionPool.MaxIdleConns,
		MaxConnsPerHost:    cfg.ConnectionPool.MaxConnsPerHost,
		IdleConnTimeout:    cfg.ConnectionPool.IdleConnTimeout,
		DisableCompression: false,
	}
	rt := userAgentTransport{agent: cfg.UserAgent, base: transport}

	return &httpClients{
		metadata: &http.Client{Transport: rt, Timeout: cfg.MetadataTimeout},
		download: &http.Client{Transport: rt, Timeout: cfg.DownloadTimeout},
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.BurstSize),
	}
}

// get performs one rate-limited GET and returns the response body. Network
// failures, timeouts and non-success statuses become TransportErrors
// carrying displayURL, which may differ from reqURL when the request
// carries credentials. Requests are never retried here.
func (c *httpClients) get(ctx context.Context, client *http.Client, sourceName, reqURL, displayURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &models.TransportError{Source: sourceName, URL: displayURL, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &models.TransportError{Source: sourceName, URL: displayURL, Err: err}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &models.TransportError{Source: sourceName, URL: displayURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, &models.TransportError{Source: sourceName, URL: displayURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &models.TransportError{Source: sourceName, URL: displayURL, Err: err}
	}

	logger.IncrementFetch(len(body))
	return body, nil
}
