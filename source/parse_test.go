package source

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseMonth(t *testing.T) {
	jan := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		in   string
		want *time.Time
	}{
		{in: "2024-01-01", want: &jan},
		{in: "2024-01-15", want: &jan},
		{in: "2024-01", want: &jan},
		{in: "  2024-01  ", want: &jan},
		{in: "01/2024", want: nil},
		{in: "2024", want: nil},
		{in: "", want: nil},
	}

	for _, tc := range cases {
		got := parseMonth(tc.in)
		switch {
		case tc.want == nil && got != nil:
			t.Errorf("parseMonth(%q) = %v, want nil", tc.in, got)
		case tc.want != nil && got == nil:
			t.Errorf("parseMonth(%q) = nil, want %v", tc.in, *tc.want)
		case tc.want != nil && got != nil && !got.Equal(*tc.want):
			t.Errorf("parseMonth(%q) = %v, want %v", tc.in, *got, *tc.want)
		}
	}
}

func TestParseValue(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{in: "158.3", want: 158.3, ok: true},
		{in: " 7 ", want: 7, ok: true},
		{in: "-0.4", want: -0.4, ok: true},
		{in: "", ok: false},
		{in: ".", ok: false},
		{in: "n/a", ok: false},
		{in: "NaN", ok: false},
		{in: "+Inf", ok: false},
		{in: "-Inf", ok: false},
	}

	for _, tc := range cases {
		got := parseValue(tc.in)
		if !tc.ok {
			if got != nil {
				t.Errorf("parseValue(%q) = %v, want nil", tc.in, *got)
			}
			continue
		}
		if got == nil {
			t.Errorf("parseValue(%q) = nil, want %v", tc.in, tc.want)
			continue
		}
		if *got != tc.want {
			t.Errorf("parseValue(%q) = %v, want %v", tc.in, *got, tc.want)
		}
	}
}

func TestRawString(t *testing.T) {
	if s, ok := rawString(json.RawMessage(`"158.3"`)); !ok || s != "158.3" {
		t.Errorf("string scalar: got %q, %v", s, ok)
	}
	if s, ok := rawString(json.RawMessage(`158.3`)); !ok || s != "158.3" {
		t.Errorf("number scalar: got %q, %v", s, ok)
	}
	if _, ok := rawString(json.RawMessage(`{"v":"158.3"}`)); ok {
		t.Error("object should not decode as a scalar")
	}
	if _, ok := rawString(nil); ok {
		t.Error("missing key should not decode")
	}
}
