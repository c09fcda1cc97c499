package models

import (
	"errors"
	"fmt"
)

// ErrEmptySeries signals that no valid observations survived integrity
// checks. Callers treat it as "no data for this run" and stop cleanly
// without writing output.
var ErrEmptySeries = errors.New("empty series: no valid observations")

// TransportError represents a failed HTTP exchange with a provider: a
// network failure, a timeout, or a non-success status code. Requests are
// never retried by the pipeline itself.
type TransportError struct {
	Source     string
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: transport failure for %s: status %d", e.Source, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s: transport failure for %s: %v", e.Source, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError represents a control response that does not follow the
// provider's documented exchange, such as a download-metadata reply
// without the expected field.
type ProtocolError struct {
	Source string
	URL    string
	Detail string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: protocol violation for %s: %s", e.Source, e.URL, e.Detail)
}

// FormatError represents a structurally invalid payload: not a zip
// archive, no data member inside one, or malformed CSV or JSON.
type FormatError struct {
	Source string
	Detail string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: malformed payload: %s: %v", e.Source, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: malformed payload: %s", e.Source, e.Detail)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// SchemaError represents a payload that parsed but lacks a required
// column.
type SchemaError struct {
	Source string
	Column string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: schema violation: required column %q not found", e.Source, e.Column)
}

// PreconditionError represents stage input that violates the stage's
// stated precondition.
type PreconditionError struct {
	Stage  string
	Detail string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: precondition violated: %s", e.Stage, e.Detail)
}
