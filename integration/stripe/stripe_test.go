package stripe

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"pipet/sync"
)

func TestProviderWiring(t *testing.T) {
	provider := GetProvider()

	assert.Equal(t, "stripe", provider.Schema)
	assert.Equal(t, 100, provider.PageLimit)
	assert.Equal(t, "2018-02-28", provider.RequestHeaders["Stripe-Version"])

	assert.NotNil(t, provider.Events)
	assert.Equal(t, "/v1/events", provider.Events.Endpoint)

	charges := provider.DescriptorByName("charges")
	assert.NotNil(t, charges)
	assert.Equal(t, sync.PaginateReverseID, charges.Style)

	// Dependents populated from parents or the feed only.
	for _, name := range []string{"sources", "discounts", "subscription_items", "transfer_reversals"} {
		d := provider.DescriptorByName(name)
		assert.NotNil(t, d)
		assert.Equal(t, sync.PaginateNone, d.Style)
	}
}

func TestRouteObjectType(t *testing.T) {
	assert.Equal(t, chargesDescriptor, RouteObjectType("charge"))
	assert.Equal(t, subscriptionItemsDescriptor, RouteObjectType("subscription_item"))
	assert.Nil(t, RouteObjectType("payment_intent"))
}

func TestChargeParseTimestampsAndMetadataRename(t *testing.T) {
	record, err := chargesDescriptor.Parse(map[string]interface{}{
		"id":       "ch_1C2eTg2eZvKYlo2C7cvLk6Fb",
		"amount":   float64(2000),
		"captured": true,
		"created":  float64(1520000000),
		"currency": "usd",
		"metadata": map[string]interface{}{"order_id": "6735"},
		"outcome":  map[string]interface{}{"network_status": "approved_by_network"},
	}, 3)
	assert.Nil(t, err)
	assert.Equal(t, "ch_1C2eTg2eZvKYlo2C7cvLk6Fb", record.ID)
	assert.Equal(t, int64(2000), record.Columns["amount"])

	created, ok := record.Columns["created"].(time.Time)
	assert.True(t, ok)
	assert.Equal(t, int64(1520000000), created.Unix())

	assert.NotContains(t, record.Columns, "metadata")
	assert.Equal(t, `{"order_id":"6735"}`, record.Columns["meta"])
}

func TestBalanceTransactionFeeDetailRows(t *testing.T) {
	record, err := balanceTransactionsDescriptor.Parse(map[string]interface{}{
		"id":     "txn_1C3vQX2eZvKYlo2CLCbJYtYk",
		"amount": float64(1000),
		"fee":    float64(59),
		"fee_details": []interface{}{
			map[string]interface{}{
				"amount":   float64(59),
				"currency": "usd",
				"type":     "stripe_fee",
			},
		},
	}, 2)
	assert.Nil(t, err)
	assert.Len(t, record.Children, 1)
	assert.Equal(t, "txn_1C3vQX2eZvKYlo2CLCbJYtYk", record.Children[0]["balance_transaction"])
	assert.Equal(t, "stripe_fee", record.Children[0]["type"])

	statements := sync.BuildStatements(record)
	assert.Len(t, statements, 2)
	assert.Contains(t, statements[1].SQL, "stripe.balance_transaction_fee_details")
}

func TestSubscriptionEmbeddedItems(t *testing.T) {
	assert.Len(t, subscriptionsDescriptor.Embedded, 1)
	embedded := subscriptionsDescriptor.Embedded[0]
	assert.True(t, embedded.FromRecord)
	assert.Equal(t, "items", embedded.Key)
	assert.Equal(t, subscriptionItemsDescriptor, embedded.Descriptor)
}

func TestSchemaDDLIncludesChildTable(t *testing.T) {
	ddl := GetProvider().SchemaDDL()

	var childDDL string
	for _, statement := range ddl {
		if strings.Contains(statement, "stripe.balance_transaction_fee_details") {
			childDDL = statement
		}
	}
	assert.NotEmpty(t, childDDL)
	assert.Contains(t, childDDL, "PRIMARY KEY (account_id, balance_transaction, idx)")
}
