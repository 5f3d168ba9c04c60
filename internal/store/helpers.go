package store

import (
	"strings"
	"time"
)

// timestampFormats covers the layouts SQLite hands back depending on whether
// the value came from a bound time.Time or a CURRENT_TIMESTAMP default.
var timestampFormats = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	time.RFC3339,
}

// parseTimestamp converts a stored timestamp string to a time.Time. Returns
// the zero time when no layout matches.
func parseTimestamp(s string) time.Time {
	for _, layout := range timestampFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// isMissingTableErr reports whether an error indicates a missing table, which
// read paths treat as an empty store rather than a failure.
func isMissingTableErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "no such table") || strings.Contains(msg, "does not exist")
}
