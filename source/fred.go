package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"macroflow/config"
	"macroflow/logger"
	"macroflow/models"
)

// fredMissingValue is the provider's missing-value sentinel: a bare period
// where a number would be.
const fredMissingValue = "."

// FRED fetches one series from the observation stream API. Requests carry
// the API key as a query parameter, so logs and errors only ever see a
// redacted URL.
type FRED struct {
	cfg     config.FREDConfig
	clients *httpClients
	log     *logger.Entry
}

func newFRED(cfg config.FREDConfig, clients *httpClients) (*FRED, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("fred api key is required: set FRED_API_KEY or sources.fred.api_key")
	}

	s := &FRED{
		cfg:     cfg,
		clients: clients,
		log:     logger.GetLogger().WithComponent("source.fred"),
	}

	s.log.WithFields(logger.Fields{"series": cfg.Series}).Info("fred source initialized")

	return s, nil
}

func (s *FRED) Name() string {
	return "fred"
}

// Fetch retrieves the observation document for the configured series.
func (s *FRED) Fetch(ctx context.Context) (models.RawPayload, error) {
	endpoint := strings.TrimRight(s.cfg.BaseURL, "/") + "/series/observations"

	q := url.Values{}
	q.Set("series_id", s.cfg.Series)
	q.Set("api_key", s.cfg.APIKey)
	q.Set("file_type", "json")
	reqURL := endpoint + "?" + q.Encode()
	displayURL := endpoint + "?series_id=" + url.QueryEscape(s.cfg.Series)

	s.log.WithFields(logger.Fields{"operation": "fetch", "url": displayURL}).Info("fetching observation stream")

	start := time.Now()
	body, err := s.clients.get(ctx, s.clients.metadata, s.Name(), reqURL, displayURL)
	if err != nil {
		return models.RawPayload{}, err
	}

	logger.LogPerformanceEntry(s.log, "source.fred", "stream_fetch", time.Since(start), logger.Fields{
		"bytes": len(body),
	})

	return models.RawPayload{Source: s.Name(), Data: body, FetchedAt: time.Now().UTC()}, nil
}

// Normalize maps every element of the observations array to a candidate.
// The "." sentinel and unparseable fields yield nil candidate fields, not
// dropped rows.
func (s *FRED) Normalize(raw models.RawPayload) ([]models.Candidate, error) {
	var doc struct {
		Observations []struct {
			Date  string `json:"date"`
			Value string `json:"value"`
		} `json:"observations"`
	}
	if err := json.Unmarshal(raw.Data, &doc); err != nil {
		return nil, &models.FormatError{Source: s.Name(), Detail: "payload is not valid json", Err: err}
	}
	if doc.Observations == nil {
		return nil, &models.SchemaError{Source: s.Name(), Column: "observations"}
	}

	out := make([]models.Candidate, 0, len(doc.Observations))
	for _, obs := range doc.Observations {
		c := models.Candidate{Date: parseMonth(obs.Date)}
		if obs.Value != fredMissingValue {
			c.Value = parseValue(obs.Value)
		}
		out = append(out, c)
	}

	s.log.WithFields(logger.Fields{
		"operation":   "normalize",
		"rows_mapped": len(out),
		"series":      s.cfg.Series,
	}).Info("normalized observation stream")

	return out, nil
}
