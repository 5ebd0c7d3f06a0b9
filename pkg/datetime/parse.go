// Package datetime parses and formats the timestamps carried by order and
// trade files.
package datetime

import (
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the layout written to ledger files.
const TimestampLayout = time.RFC3339Nano

// layouts are tried in order when reading a timestamp. The space-separated
// forms are what spreadsheet and dataframe exports usually produce.
var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses s with the first matching known layout. Timestamps
// without a zone are read as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// MustParseTimestamp is ParseTimestamp that panics on error.
// This is intended for use in tests where the string is known to be valid.
func MustParseTimestamp(s string) time.Time {
	t, err := ParseTimestamp(s)
	if err != nil {
		panic(err)
	}
	return t
}

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
