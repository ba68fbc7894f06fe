package provider

import (
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	want := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   string
	}{
		{name: "date only", in: "2026-03-15"},
		{name: "rfc3339", in: "2026-03-15T09:30:00Z"},
		{name: "datetime no zone", in: "2026-03-15T09:30:00"},
		{name: "datetime with space", in: "2026-03-15 09:30:00"},
		{name: "us slashes", in: "03/15/2026"},
		{name: "day month year", in: "15 Mar 2026"},
		{name: "unix seconds", in: "1773565200"}, // 2026-03-15 09:00 UTC
		{name: "surrounding whitespace", in: "  2026-03-15  "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDate(tt.in)
			if err != nil {
				t.Fatalf("ParseDate(%q) failed: %v", tt.in, err)
			}
			if !got.Equal(want) {
				t.Fatalf("ParseDate(%q) = %s, want %s", tt.in, got, want)
			}
		})
	}
}

func TestParseDateRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "   ", "not a date", "-42", "yesterday"} {
		if _, err := ParseDate(in); err == nil {
			t.Fatalf("ParseDate(%q) should fail", in)
		}
	}
}
