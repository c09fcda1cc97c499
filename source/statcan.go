package source

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"macroflow/config"
	"macroflow/logger"
	"macroflow/models"
)

// Bulk table column matching: headers are case-folded and trimmed before
// comparison. Geography, reference date and value are exact header names;
// the category column is located by substring because the published header
// embeds the classification vintage (for example "Products and product
// groups (2013=100)").
const (
	geoColumn              = "geo"
	refDateColumn          = "ref_date"
	valueColumn            = "value"
	productColumnSubstring = "product"
)

// StatCan fetches the full CPI table through the bulk-export web service:
// a metadata call resolves the table's download location, then the zipped
// CSV is downloaded whole and filtered locally.
type StatCan struct {
	cfg     config.StatCanConfig
	clients *httpClients
	log     *logger.Entry
}

func newStatCan(cfg config.StatCanConfig, clients *httpClients) (*StatCan, error) {
	if !validProductID(cfg.ProductID) {
		return nil, fmt.Errorf("statcan product id %q is invalid: must be exactly 8 digits", cfg.ProductID)
	}

	s := &StatCan{
		cfg:     cfg,
		clients: clients,
		log:     logger.GetLogger().WithComponent("source.statcan"),
	}

	s.log.WithFields(logger.Fields{
		"product_id": cfg.ProductID,
		"language":   cfg.Language,
		"geography":  cfg.Geography,
		"category":   cfg.Category,
	}).Info("statcan source initialized")

	return s, nil
}

func (s *StatCan) Name() string {
	return "statcan"
}

// Fetch runs the two-step bulk download. The metadata reply must be a JSON
// object whose "object" field carries the download URL; anything else is a
// protocol violation.
func (s *StatCan) Fetch(ctx context.Context) (models.RawPayload, error) {
	metaURL := fmt.Sprintf("%s/getFullTableDownloadCSV/%s/%s",
		strings.TrimRight(s.cfg.BaseURL, "/"), s.cfg.ProductID, s.cfg.Language)

	log := s.log.WithFields(logger.Fields{"operation": "fetch", "url": metaURL})
	log.Info("resolving bulk download location")

	start := time.Now()
	meta, err := s.clients.get(ctx, s.clients.metadata, s.Name(), metaURL, metaURL)
	if err != nil {
		return models.RawPayload{}, err
	}

	var reply struct {
		Status string `json:"status"`
		Object string `json:"object"`
	}
	if err := json.Unmarshal(meta, &reply); err != nil {
		return models.RawPayload{}, &models.ProtocolError{
			Source: s.Name(),
			URL:    metaURL,
			Detail: "metadata reply is not the expected JSON object",
		}
	}
	if reply.Object == "" {
		return models.RawPayload{}, &models.ProtocolError{
			Source: s.Name(),
			URL:    metaURL,
			Detail: "metadata reply carries no download location",
		}
	}

	log.WithFields(logger.Fields{"download_url": reply.Object}).Info("downloading bulk table")

	body, err := s.clients.get(ctx, s.clients.download, s.Name(), reply.Object, reply.Object)
	if err != nil {
		return models.RawPayload{}, err
	}

	logger.LogPerformanceEntry(s.log, "source.statcan", "bulk_download", time.Since(start), logger.Fields{
		"bytes": len(body),
	})

	return models.RawPayload{Source: s.Name(), Data: body, FetchedAt: time.Now().UTC()}, nil
}

// Normalize unpacks the archive, locates the required table columns and
// maps rows for the target geography and exact category label into
// candidates. Rows are not sorted, deduplicated or dropped here;
// unparseable fields surface as nil candidate fields.
func (s *StatCan) Normalize(raw models.RawPayload) ([]models.Candidate, error) {
	table, err := ExtractTable(s.Name(), raw.Data)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(bytes.NewReader(table))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, &models.FormatError{Source: s.Name(), Detail: "table has no header row", Err: err}
	}

	cols, err := locateColumns(s.Name(), header)
	if err != nil {
		return nil, err
	}

	var out []models.Candidate
	scanned := 0
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &models.FormatError{Source: s.Name(), Detail: "malformed csv row", Err: err}
		}
		scanned++

		if !strings.EqualFold(strings.TrimSpace(field(row, cols.geo)), s.cfg.Geography) {
			continue
		}
		if strings.TrimSpace(field(row, cols.product)) != s.cfg.Category {
			continue
		}

		out = append(out, models.Candidate{
			Date:  parseMonth(field(row, cols.refDate)),
			Value: parseValue(field(row, cols.value)),
		})
	}

	s.log.WithFields(logger.Fields{
		"operation":    "normalize",
		"rows_scanned": scanned,
		"rows_matched": len(out),
		"geography":    s.cfg.Geography,
		"category":     s.cfg.Category,
	}).Info("normalized bulk table")

	return out, nil
}

// bulkColumns holds resolved indexes of the required table columns.
type bulkColumns struct {
	geo     int
	product int
	refDate int
	value   int
}

// locateColumns resolves the required columns against a case-folded,
// trimmed header row. Every one of them is required; a missing column is a
// schema violation naming that column, never a silent no-filter scan.
func locateColumns(sourceName string, header []string) (bulkColumns, error) {
	cols := bulkColumns{geo: -1, product: -1, refDate: -1, value: -1}

	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		switch name {
		case geoColumn:
			if cols.geo < 0 {
				cols.geo = i
			}
		case refDateColumn:
			if cols.refDate < 0 {
				cols.refDate = i
			}
		case valueColumn:
			if cols.value < 0 {
				cols.value = i
			}
		}
		if cols.product < 0 && strings.Contains(name, productColumnSubstring) {
			cols.product = i
		}
	}

	switch {
	case cols.refDate < 0:
		return cols, &models.SchemaError{Source: sourceName, Column: refDateColumn}
	case cols.geo < 0:
		return cols, &models.SchemaError{Source: sourceName, Column: geoColumn}
	case cols.product < 0:
		return cols, &models.SchemaError{Source: sourceName, Column: productColumnSubstring}
	case cols.value < 0:
		return cols, &models.SchemaError{Source: sourceName, Column: valueColumn}
	}

	return cols, nil
}

// field is index access tolerant of ragged csv rows.
func field(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

// Bulk table identifiers are numeric, eight digits, no separators.
func validProductID(id string) bool {
	if len(id) != 8 {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
