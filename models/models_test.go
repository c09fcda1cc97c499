package models

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestCandidateValid(t *testing.T) {
	d := time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)
	v := 161.8

	cases := []struct {
		name  string
		c     Candidate
		valid bool
	}{
		{"both set", Candidate{Date: &d, Value: &v}, true},
		{"missing value", Candidate{Date: &d}, false},
		{"missing date", Candidate{Value: &v}, false},
		{"empty", Candidate{}, false},
	}
	for _, c := range cases {
		if got := c.c.Valid(); got != c.valid {
			t.Errorf("%s: Valid() = %v, want %v", c.name, got, c.valid)
		}
	}
}

func TestSchemaErrorNamesColumn(t *testing.T) {
	err := &SchemaError{Source: "statcan", Column: "ref_date"}
	if !strings.Contains(err.Error(), `"ref_date"`) {
		t.Fatalf("schema error should name the missing column: %s", err.Error())
	}
}

func TestTransportErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := &TransportError{Source: "fred", URL: "https://example.com", Err: cause}
	if !errors.Is(err, cause) {
		t.Fatalf("expected transport error to unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("unexpected message: %s", err.Error())
	}

	status := &TransportError{Source: "fred", URL: "https://example.com", StatusCode: 503}
	if !strings.Contains(status.Error(), "503") {
		t.Errorf("status code missing from message: %s", status.Error())
	}
}

func TestErrEmptySeriesIdentity(t *testing.T) {
	wrapped := fmt.Errorf("building series: %w", ErrEmptySeries)
	if !errors.Is(wrapped, ErrEmptySeries) {
		t.Fatalf("wrapped empty series error lost its identity")
	}
}

func TestPreconditionErrorMessage(t *testing.T) {
	err := &PreconditionError{Stage: "rates", Detail: "series not strictly ascending at index 3"}
	msg := err.Error()
	if !strings.Contains(msg, "rates") || !strings.Contains(msg, "index 3") {
		t.Errorf("unexpected message: %s", msg)
	}
}
