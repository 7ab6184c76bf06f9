package services

import "time"

// now is replaced in tests.
var now = time.Now

// GetCurrentTimestamp returns the current UTC time in RFC3339.
func GetCurrentTimestamp() string {
	return FormatTimestamp(now())
}

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
