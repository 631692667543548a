package timeparser

import (
	"fmt"
	"time"
)

// ParseDeviceTimestamp attempts to parse a vendor reading timestamp with
// multiple formats. Fitbit reports wall-clock time without a zone; other
// vendors use RFC3339 or a space-separated variant.
func ParseDeviceTimestamp(dateStr string) (time.Time, error) {
	formats := []string{
		time.RFC3339,
		"2006-01-02T15:04:05", // zoneless wall-clock time
		"2006-01-02 15:04:05",
	}

	var lastErr error
	for _, format := range formats {
		t, err := time.Parse(format, dateStr)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("failed to parse timestamp '%s': %w", dateStr, lastErr)
}
