package util

import (
	"fmt"
	"strconv"

	log "github.com/sirupsen/logrus"
)

// GetValueAsString returns string for supported scalar JSON value types.
func GetValueAsString(value interface{}) string {
	if value == nil {
		return ""
	}

	switch valueType := value.(type) {
	case float32, float64:
		return fmt.Sprintf("%0.0f", value)
	case int, int32, int64:
		return fmt.Sprintf("%v", value)
	case string:
		return value.(string)
	case bool:
		return strconv.FormatBool(value.(bool))
	default:
		log.Error("Invalid value type on GetValueAsString : ", valueType)
		return ""
	}
}

// GetValueAsInt64 returns int64 for numeric JSON values. JSON numbers
// decode as float64, ids from providers can also arrive as strings.
func GetValueAsInt64(value interface{}) (int64, error) {
	switch v := value.(type) {
	case float64:
		return int64(v), nil
	case float32:
		return int64(v), nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("invalid value type on GetValueAsInt64 : %T", value)
	}
}

// GetValueAsBool returns bool for boolean JSON values.
func GetValueAsBool(value interface{}) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		return strconv.ParseBool(v)
	default:
		return false, fmt.Errorf("invalid value type on GetValueAsBool : %T", value)
	}
}
