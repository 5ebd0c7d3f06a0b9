package datetime

import (
	"testing"
	"time"
)

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 3, 5, 14, 30, 15, 0, time.UTC)

	tests := []struct {
		name     string
		input    string
		expected time.Time
	}{
		{name: "RFC3339", input: "2024-03-05T14:30:15Z", expected: want},
		{name: "space separated", input: "2024-03-05 14:30:15", expected: want},
		{name: "no zone", input: "2024-03-05T14:30:15", expected: want},
		{name: "fractional seconds", input: "2024-03-05 14:30:15.250", expected: want.Add(250 * time.Millisecond)},
		{name: "date only", input: "2024-03-05", expected: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
		{name: "surrounding space", input: "  2024-03-05T14:30:15Z ", expected: want},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.input)
			if err != nil {
				t.Fatalf("ParseTimestamp(%q) returned error: %v", tt.input, err)
			}
			if !got.Equal(tt.expected) {
				t.Errorf("ParseTimestamp(%q) = %v, expected %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParseTimestampInvalid(t *testing.T) {
	for _, input := range []string{"", "yesterday", "2024-13-01"} {
		if _, err := ParseTimestamp(input); err == nil {
			t.Errorf("ParseTimestamp(%q) expected error", input)
		}
	}
}

func TestMustParseTimestampPanic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("Expected MustParseTimestamp to panic with invalid timestamp")
		}
	}()

	MustParseTimestamp("invalid-date")
}

func TestFormatTimestampRoundTrip(t *testing.T) {
	ts := time.Date(2024, 3, 5, 14, 30, 15, 123000000, time.UTC)
	got, err := ParseTimestamp(FormatTimestamp(ts))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(ts) {
		t.Errorf("round trip = %v, expected %v", got, ts)
	}
}
