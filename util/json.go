package util

import (
	"encoding/json"

	"github.com/jinzhu/gorm/dialects/postgres"
)

// DecodePostgresJsonbAsStringMap decodes a jsonb column holding a
// string -> string map. Used for the per-resource cursor map.
func DecodePostgresJsonbAsStringMap(sourceJsonb *postgres.Jsonb) (map[string]string, error) {
	sourceMap := make(map[string]string)
	if IsEmptyPostgresJsonb(sourceJsonb) {
		return sourceMap, nil
	}

	err := json.Unmarshal(sourceJsonb.RawMessage, &sourceMap)
	if err != nil {
		return nil, err
	}

	return sourceMap, nil
}

// DecodePostgresJsonbAsBoolMap decodes a jsonb column holding a
// string -> bool map. Used for the per-resource backfilled map.
func DecodePostgresJsonbAsBoolMap(sourceJsonb *postgres.Jsonb) (map[string]bool, error) {
	sourceMap := make(map[string]bool)
	if IsEmptyPostgresJsonb(sourceJsonb) {
		return sourceMap, nil
	}

	err := json.Unmarshal(sourceJsonb.RawMessage, &sourceMap)
	if err != nil {
		return nil, err
	}

	return sourceMap, nil
}

// EncodeToPostgresJsonb encodes any json marshalable value to jsonb.
func EncodeToPostgresJsonb(value interface{}) (*postgres.Jsonb, error) {
	valueBytes, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}

	return &postgres.Jsonb{RawMessage: json.RawMessage(valueBytes)}, nil
}

func IsEmptyPostgresJsonb(sourceJsonb *postgres.Jsonb) bool {
	return sourceJsonb == nil || len(sourceJsonb.RawMessage) == 0 ||
		string(sourceJsonb.RawMessage) == "null"
}
