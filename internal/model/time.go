package model

import "time"

// TimeFormat is fixed width so stored timestamps compare correctly as
// strings inside DynamoDB condition expressions.
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// ParseTime returns the zero time for empty or malformed values.
func ParseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(TimeFormat, value)
	if err != nil {
		if t, err = time.Parse(time.RFC3339Nano, value); err != nil {
			return time.Time{}
		}
	}
	return t.UTC()
}
