package sync

import (
	"encoding/json"
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"

	U "pipet/util"
)

// FieldType declares the coercion applied to a provider field before
// upsert. Coercion is declared per field at descriptor construction,
// never inferred at runtime.
type FieldType int

const (
	FieldText FieldType = iota + 1
	FieldBigint
	FieldFloat
	FieldBool
	// ISO-8601 string timestamp, GMT assumed (zendesk).
	FieldTimeISO
	// Unix seconds timestamp (stripe).
	FieldTimeUnix
	FieldTextArray
	FieldBigintArray
	FieldJSON
)

// PaginationStyle of a resource's fetch endpoint.
type PaginationStyle int

const (
	// PaginateNone - no top-level endpoint. The resource is populated
	// only as a dependent of its parent.
	PaginateNone PaginationStyle = iota
	// PaginateForwardTime - chronological export walked with a
	// start_time cursor, oldest first. Backfill and polling share the
	// same loop.
	PaginateForwardTime
	// PaginateReverseID - newest-first listing walked toward older
	// records with a starting_after id during backfill. Polling after
	// backfill is driven by the provider's event feed.
	PaginateReverseID
)

// Field maps one provider field to a mirrored column.
type Field struct {
	// Name is the provider's field name.
	Name string
	// Column overrides the target column when the provider name is a
	// reserved word, e.g. "metadata" -> "meta". Empty means Name.
	Column string
	Type   FieldType
	// Required fails the whole record when the value is malformed.
	Required bool
}

func (f *Field) column() string {
	if f.Column != "" {
		return f.Column
	}
	return f.Name
}

// Embedded declares a dependent resource whose records arrive inside a
// parent page instead of via their own endpoint.
type Embedded struct {
	// Key of the list in the page body, or in each record when
	// FromRecord is set.
	Key        string
	Descriptor *Descriptor
	// FromRecord pulls the list from each record's Key field,
	// unwrapping the provider's nested {"data": [...]} list shape.
	FromRecord bool
}

// ChildTable holds rows exploded from a list field on the parent into
// their own table, scoped by the parent's id.
type ChildTable struct {
	// Key of the list field on the parent record.
	Key string
	// Name of the child table.
	Name string
	// ParentColumn holds the parent record's id on each child row.
	ParentColumn string
	Fields       []Field
}

// Descriptor is the declarative metadata for one mirrored entity type:
// shape, coercion rules, fetch endpoint and pagination style.
type Descriptor struct {
	// Name is the mirrored table name inside the provider schema.
	Name   string
	Schema string
	// IDField is the provider's natural id field.
	IDField string
	// IDType is FieldBigint or FieldText.
	IDType FieldType
	Fields []Field
	// Endpoint template. Forward-time endpoints embed the cursor with
	// %s, reverse-id endpoints take query parameters.
	Endpoint string
	// ListKey is the record list's key in the page body.
	ListKey string
	Style   PaginationStyle
	// AppendOnly rows are immutable at the source - the upsert skips
	// instead of updating on conflict.
	AppendOnly bool
	Embedded   []Embedded
	ChildRows  *ChildTable
	// ObjectType discriminator for routing pushed payloads.
	ObjectType string
}

// ParseFailedError - a declared-required field was missing or
// malformed; the record cannot be mirrored.
type ParseFailedError struct {
	Field string
}

func (e *ParseFailedError) Error() string {
	return fmt.Sprintf("malformed value for required field %s", e.Field)
}

// Record is the normalized in-memory form of one external object,
// ready for upsert. Transient - exists only between fetch and upsert.
type Record struct {
	Descriptor *Descriptor
	AccountID  uint64
	// ID is the natural id, int64 or string per IDType.
	ID interface{}
	// Columns maps column name to coerced value.
	Columns map[string]interface{}
	// Children are exploded child-table rows, written after the parent.
	Children []map[string]interface{}
}

// Parse normalizes raw provider JSON for one object. Unknown fields
// are dropped to stay forward compatible with provider schema
// additions. Malformed optional fields are dropped with a warning,
// malformed required fields fail the record.
func (d *Descriptor) Parse(raw map[string]interface{}, accountID uint64) (*Record, error) {
	id, err := d.parseID(raw)
	if err != nil {
		return nil, err
	}

	record := &Record{
		Descriptor: d,
		AccountID:  accountID,
		ID:         id,
		Columns:    make(map[string]interface{}),
	}

	for i := range d.Fields {
		field := &d.Fields[i]

		value, exists := raw[field.Name]
		if !exists || value == nil {
			if field.Required {
				return nil, &ParseFailedError{Field: field.Name}
			}
			continue
		}

		coerced, err := coerceValue(field.Type, value)
		if err != nil {
			if field.Required {
				return nil, &ParseFailedError{Field: field.Name}
			}

			log.WithFields(log.Fields{"resource": d.Name, "field": field.Name,
				"account_id": accountID}).WithError(err).Warn(
				"Dropping malformed optional field.")
			continue
		}

		record.Columns[field.column()] = coerced
	}

	if d.ChildRows != nil {
		record.Children = d.parseChildren(raw, id)
	}

	return record, nil
}

func (d *Descriptor) parseID(raw map[string]interface{}) (interface{}, error) {
	value, exists := raw[d.IDField]
	if !exists || value == nil {
		return nil, &ParseFailedError{Field: d.IDField}
	}

	if d.IDType == FieldBigint {
		id, err := U.GetValueAsInt64(value)
		if err != nil {
			return nil, &ParseFailedError{Field: d.IDField}
		}
		return id, nil
	}

	id, ok := value.(string)
	if !ok || id == "" {
		return nil, &ParseFailedError{Field: d.IDField}
	}
	return id, nil
}

func (d *Descriptor) parseChildren(raw map[string]interface{}, parentID interface{}) []map[string]interface{} {
	list := unwrapList(raw[d.ChildRows.Key])
	if len(list) == 0 {
		return nil
	}

	children := make([]map[string]interface{}, 0, len(list))
	for idx, childRaw := range list {
		columns := map[string]interface{}{
			d.ChildRows.ParentColumn: parentID,
			"idx":                    int64(idx),
		}

		for i := range d.ChildRows.Fields {
			field := &d.ChildRows.Fields[i]

			value, exists := childRaw[field.Name]
			if !exists || value == nil {
				continue
			}

			coerced, err := coerceValue(field.Type, value)
			if err != nil {
				log.WithFields(log.Fields{"resource": d.Name, "child": d.ChildRows.Name,
					"field": field.Name}).WithError(err).Warn(
					"Dropping malformed child field.")
				continue
			}

			columns[field.column()] = coerced
		}

		children = append(children, columns)
	}

	return children
}

func coerceValue(fieldType FieldType, value interface{}) (interface{}, error) {
	switch fieldType {
	case FieldText:
		if s, ok := value.(string); ok {
			return s, nil
		}
		return nil, fmt.Errorf("expected string, got %T", value)
	case FieldBigint:
		return U.GetValueAsInt64(value)
	case FieldFloat:
		if f, ok := value.(float64); ok {
			return f, nil
		}
		return nil, fmt.Errorf("expected number, got %T", value)
	case FieldBool:
		return U.GetValueAsBool(value)
	case FieldTimeISO:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("expected timestamp string, got %T", value)
		}
		return U.ParseTimestampISO(s)
	case FieldTimeUnix:
		return U.ParseTimestampUnix(value)
	case FieldTextArray:
		return coerceTextArray(value)
	case FieldBigintArray:
		return coerceBigintArray(value)
	case FieldJSON:
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		return string(encoded), nil
	}

	return nil, fmt.Errorf("unknown field type %d", fieldType)
}

// Multi-value fields are unordered at the source. Sorting makes
// repeated syncs of unchanged data produce byte-identical upserts.
func coerceTextArray(value interface{}) ([]string, error) {
	list, ok := value.([]interface{})
	if !ok {
		return nil, fmt.Errorf("expected list, got %T", value)
	}

	values := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("expected string element, got %T", item)
		}
		values = append(values, s)
	}

	sort.Strings(values)
	return values, nil
}

func coerceBigintArray(value interface{}) ([]int64, error) {
	list, ok := value.([]interface{})
	if !ok {
		return nil, fmt.Errorf("expected list, got %T", value)
	}

	values := make([]int64, 0, len(list))
	for _, item := range list {
		n, err := U.GetValueAsInt64(item)
		if err != nil {
			return nil, err
		}
		values = append(values, n)
	}

	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	return values, nil
}

// unwrapList reads a JSON list that may arrive as a bare array or as
// the provider's nested list object {"object": "list", "data": [...]}.
func unwrapList(value interface{}) []map[string]interface{} {
	if value == nil {
		return nil
	}

	if wrapped, ok := value.(map[string]interface{}); ok {
		value = wrapped["data"]
	}

	list, ok := value.([]interface{})
	if !ok {
		return nil
	}

	records := make([]map[string]interface{}, 0, len(list))
	for _, item := range list {
		if record, ok := item.(map[string]interface{}); ok {
			records = append(records, record)
		}
	}

	return records
}
