package source

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"macroflow/config"
	"macroflow/logger"
	"macroflow/models"
)

// BankOfCanada fetches one pre-filtered series from the Valet observation
// stream. Observations carry the date under "d" and the value nested under
// the series code as {"v": "..."}.
type BankOfCanada struct {
	cfg     config.BankOfCanadaConfig
	clients *httpClients
	log     *logger.Entry
}

func newBankOfCanada(cfg config.BankOfCanadaConfig, clients *httpClients) (*BankOfCanada, error) {
	s := &BankOfCanada{
		cfg:     cfg,
		clients: clients,
		log:     logger.GetLogger().WithComponent("source.bankofcanada"),
	}

	s.log.WithFields(logger.Fields{"series": cfg.Series}).Info("bankofcanada source initialized")

	return s, nil
}

func (s *BankOfCanada) Name() string {
	return "bankofcanada"
}

// Fetch retrieves the full observation document for the configured series.
func (s *BankOfCanada) Fetch(ctx context.Context) (models.RawPayload, error) {
	u := fmt.Sprintf("%s/observations/%s/json", strings.TrimRight(s.cfg.BaseURL, "/"), s.cfg.Series)

	s.log.WithFields(logger.Fields{"operation": "fetch", "url": u}).Info("fetching observation stream")

	start := time.Now()
	body, err := s.clients.get(ctx, s.clients.metadata, s.Name(), u, u)
	if err != nil {
		return models.RawPayload{}, err
	}

	logger.LogPerformanceEntry(s.log, "source.bankofcanada", "stream_fetch", time.Since(start), logger.Fields{
		"bytes": len(body),
	})

	return models.RawPayload{Source: s.Name(), Data: body, FetchedAt: time.Now().UTC()}, nil
}

// Normalize maps every element of the observations array to a candidate.
// A missing date key, a missing series key or an unparseable field yields
// a nil candidate field, not a dropped row.
func (s *BankOfCanada) Normalize(raw models.RawPayload) ([]models.Candidate, error) {
	var doc struct {
		Observations []map[string]json.RawMessage `json:"observations"`
	}
	if err := json.Unmarshal(raw.Data, &doc); err != nil {
		return nil, &models.FormatError{Source: s.Name(), Detail: "payload is not valid json", Err: err}
	}
	if doc.Observations == nil {
		return nil, &models.SchemaError{Source: s.Name(), Column: "observations"}
	}

	out := make([]models.Candidate, 0, len(doc.Observations))
	for _, obs := range doc.Observations {
		var c models.Candidate

		if d, ok := rawString(obs["d"]); ok {
			c.Date = parseMonth(d)
		}

		var v struct {
			V json.RawMessage `json:"v"`
		}
		if err := json.Unmarshal(obs[s.cfg.Series], &v); err == nil {
			if val, ok := rawString(v.V); ok {
				c.Value = parseValue(val)
			}
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
