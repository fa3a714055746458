package util

import (
	"errors"
	"time"
)

// Providers send ISO-8601 timestamps with and without zone suffix.
// Parsing uses the first 19 chars and assumes GMT.
const DATETIME_FORMAT_ISO8601_PREFIX string = "2006-01-02T15:04:05"

// ParseTimestampISO parses an ISO-8601 timestamp string as GMT.
func ParseTimestampISO(value string) (time.Time, error) {
	if len(value) < len(DATETIME_FORMAT_ISO8601_PREFIX) {
		return time.Time{}, errors.New("invalid iso8601 timestamp")
	}

	return time.Parse(DATETIME_FORMAT_ISO8601_PREFIX, value[:len(DATETIME_FORMAT_ISO8601_PREFIX)])
}

// ParseTimestampUnix parses a unix seconds value as UTC time.
// JSON numbers decode as float64.
func ParseTimestampUnix(value interface{}) (time.Time, error) {
	seconds, err := GetValueAsInt64(value)
	if err != nil {
		return time.Time{}, err
	}

	if seconds < 0 {
		return time.Time{}, errors.New("invalid unix timestamp")
	}

	return time.Unix(seconds, 0).UTC(), nil
}
