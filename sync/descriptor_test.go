package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testDescriptor() *Descriptor {
	return &Descriptor{
		Name:    "tickets",
		Schema:  "zendesk",
		IDField: "id",
		IDType:  FieldBigint,
		Fields: []Field{
			{Name: "subject", Type: FieldText},
			{Name: "created_at", Type: FieldTimeISO},
			{Name: "tags", Type: FieldTextArray},
			{Name: "collaborator_ids", Type: FieldBigintArray},
			{Name: "has_incidents", Type: FieldBool},
			{Name: "via", Type: FieldJSON},
		},
	}
}

func TestParseCoercesDeclaredFields(t *testing.T) {
	d := testDescriptor()

	record, err := d.Parse(map[string]interface{}{
		"id":               float64(42),
		"subject":          "printer on fire",
		"created_at":       "2018-03-01T10:20:30Z",
		"tags":             []interface{}{"urgent", "billing", "printer"},
		"collaborator_ids": []interface{}{float64(9), float64(3)},
		"has_incidents":    true,
		"via":              map[string]interface{}{"channel": "web"},
	}, 7)
	assert.Nil(t, err)
	assert.Equal(t, int64(42), record.ID)
	assert.Equal(t, uint64(7), record.AccountID)
	assert.Equal(t, "printer on fire", record.Columns["subject"])
	assert.Equal(t, true, record.Columns["has_incidents"])

	created, ok := record.Columns["created_at"].(time.Time)
	assert.True(t, ok)
	assert.Equal(t, time.Date(2018, 3, 1, 10, 20, 30, 0, time.UTC), created)

	// Multi-value fields come back sorted so re-synced unchanged data
	// produces identical statements.
	assert.Equal(t, []string{"billing", "printer", "urgent"}, record.Columns["tags"])
	assert.Equal(t, []int64{3, 9}, record.Columns["collaborator_ids"])

	assert.Equal(t, `{"channel":"web"}`, record.Columns["via"])
}

func TestParseTagPermutationsAreDeterministic(t *testing.T) {
	d := testDescriptor()

	first, err := d.Parse(map[string]interface{}{
		"id": float64(1), "tags": []interface{}{"b", "a", "c"}}, 1)
	assert.Nil(t, err)
	second, err := d.Parse(map[string]interface{}{
		"id": float64(1), "tags": []interface{}{"c", "b", "a"}}, 1)
	assert.Nil(t, err)

	assert.Equal(t, first.Columns["tags"], second.Columns["tags"])
	assert.Equal(t, BuildUpsert(first), BuildUpsert(second))
}

func TestParseDropsUnknownFields(t *testing.T) {
	d := testDescriptor()

	record, err := d.Parse(map[string]interface{}{
		"id":           float64(5),
		"subject":      "hello",
		"brand_new":    "provider added this yesterday",
		"satisfaction": map[string]interface{}{"score": "good"},
	}, 1)
	assert.Nil(t, err)
	assert.Equal(t, "hello", record.Columns["subject"])
	assert.NotContains(t, record.Columns, "brand_new")
	assert.NotContains(t, record.Columns, "satisfaction")
}

func TestParseDropsMalformedOptionalField(t *testing.T) {
	d := testDescriptor()

	record, err := d.Parse(map[string]interface{}{
		"id":         float64(5),
		"subject":    "hello",
		"created_at": "not-a-timestamp",
	}, 1)
	assert.Nil(t, err)
	assert.NotContains(t, record.Columns, "created_at")
	assert.Equal(t, "hello", record.Columns["subject"])
}

func TestParseFailsRecordOnMalformedRequiredField(t *testing.T) {
	d := testDescriptor()
	d.Fields[1].Required = true

	_, err := d.Parse(map[string]interface{}{
		"id":         float64(5),
		"created_at": "garbage",
	}, 1)
	assert.NotNil(t, err)

	parseErr, ok := err.(*ParseFailedError)
	assert.True(t, ok)
	assert.Equal(t, "created_at", parseErr.Field)

	_, err = d.Parse(map[string]interface{}{"id": float64(5)}, 1)
	assert.NotNil(t, err)
}

func TestParseFailsRecordOnMissingOrBadID(t *testing.T) {
	d := testDescriptor()

	_, err := d.Parse(map[string]interface{}{"subject": "no id"}, 1)
	assert.NotNil(t, err)

	_, err = d.Parse(map[string]interface{}{"id": "not-a-number"}, 1)
	assert.NotNil(t, err)
}

func TestParseStringIDAndColumnRename(t *testing.T) {
	d := &Descriptor{
		Name:    "charges",
		Schema:  "stripe",
		IDField: "id",
		IDType:  FieldText,
		Fields: []Field{
			{Name: "metadata", Column: "meta", Type: FieldJSON},
			{Name: "created", Type: FieldTimeUnix},
		},
	}

	record, err := d.Parse(map[string]interface{}{
		"id":       "ch_1abc",
		"metadata": map[string]interface{}{"order": "123"},
		"created":  float64(1520000000),
	}, 3)
	assert.Nil(t, err)
	assert.Equal(t, "ch_1abc", record.ID)
	assert.NotContains(t, record.Columns, "metadata")
	assert.Equal(t, `{"order":"123"}`, record.Columns["meta"])

	created, ok := record.Columns["created"].(time.Time)
	assert.True(t, ok)
	assert.Equal(t, int64(1520000000), created.Unix())
}

func TestParseChildRows(t *testing.T) {
	d := &Descriptor{
		Name:    "balance_transactions",
		Schema:  "stripe",
		IDField: "id",
		IDType:  FieldText,
		Fields: []Field{
			{Name: "amount", Type: FieldBigint},
		},
		ChildRows: &ChildTable{
			Key:          "fee_details",
			Name:         "balance_transaction_fee_details",
			ParentColumn: "balance_transaction",
			Fields: []Field{
				{Name: "amount", Type: FieldBigint},
				{Name: "type", Type: FieldText},
			},
		},
	}

	record, err := d.Parse(map[string]interface{}{
		"id":     "txn_1",
		"amount": float64(1000),
		"fee_details": []interface{}{
			map[string]interface{}{"amount": float64(59), "type": "stripe_fee"},
			map[string]interface{}{"amount": float64(10), "type": "tax"},
		},
	}, 2)
	assert.Nil(t, err)
	assert.Len(t, record.Children, 2)
	assert.Equal(t, "txn_1", record.Children[0]["balance_transaction"])
	assert.Equal(t, int64(0), record.Children[0]["idx"])
	assert.Equal(t, int64(59), record.Children[0]["amount"])
	assert.Equal(t, int64(1), record.Children[1]["idx"])
	assert.Equal(t, "tax", record.Children[1]["type"])
}

func TestUnwrapList(t *testing.T) {
	bare := unwrapList([]interface{}{
		map[string]interface{}{"id": "a"},
	})
	assert.Len(t, bare, 1)

	nested := unwrapList(map[string]interface{}{
		"object": "list",
		"data": []interface{}{
			map[string]interface{}{"id": "a"},
			map[string]interface{}{"id": "b"},
		},
	})
	assert.Len(t, nested, 2)

	assert.Nil(t, unwrapList(nil))
	assert.Nil(t, unwrapList("junk"))
}
