package source

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// monthLayouts are the reference-date shapes the providers publish: full
// dates for the observation streams, year-month for the bulk table.
var monthLayouts = []string{"2006-01-02", "2006-01"}

// parseMonth parses a provider date string and truncates it to the first
// instant of its month, UTC. A nil result means the field is unusable.
func parseMonth(s string) *time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range monthLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			m := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
			return &m
		}
	}
	return nil
}

// parseValue parses a numeric observation value. A nil result means the
// field is missing or unusable; NaN and infinities count as unusable.
func parseValue(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// rawString decodes a JSON scalar into its string form. Providers publish
// observation values as strings, but the occasional bare number shows up.
func rawString(m json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(m, &s); err == nil {
		return s, true
	}
	var n json.Number
	if err := json.Unmarshal(m, &n); err == nil {
		return n.String(), true
	}
	return "", false
}
