/**
 * @description
 * Defensive date parsing for provider payloads. Providers report dates in a
 * handful of shapes (date-only, RFC3339, US slashes, unix seconds); this
 * utility owns the fallback chain so no caller has to patch or second-guess
 * a third-party parser.
 */
package provider

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// dateLayouts are tried in order; the first match wins.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"01/02/2006",
	"02 Jan 2006",
}

// ParseDate parses a provider-reported date string, normalized to UTC
// midnight. Numeric strings are treated as unix seconds.
func ParseDate(s string) (time.Time, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return midnightUTC(t), nil
		}
	}

	if secs, err := strconv.ParseInt(trimmed, 10, 64); err == nil && secs > 0 {
		return midnightUTC(time.Unix(secs, 0).UTC()), nil
	}

	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

func midnightUTC(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
