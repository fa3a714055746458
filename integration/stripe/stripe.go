package stripe

import (
	"net/http"

	"pipet/model/model"
	"pipet/sync"
)

const SchemaName = "stripe"

// Listing endpoints return at most 100 records per call and walk
// newest-first with starting_after. Incremental changes arrive via the
// /v1/events feed after backfill.
const pageLimit = 100

// Pinned so provider-side API upgrades never change response shapes
// under a running mirror.
const apiVersion = "2018-02-28"

var balanceTransactionsDescriptor = &sync.Descriptor{
	Name:    "balance_transactions",
	Schema:  SchemaName,
	IDField: "id",
	IDType:  sync.FieldText,
	Fields: []sync.Field{
		{Name: "amount", Type: sync.FieldBigint},
		{Name: "available_on", Type: sync.FieldTimeUnix},
		{Name: "created", Type: sync.FieldTimeUnix},
		{Name: "currency", Type: sync.FieldText},
		{Name: "description", Type: sync.FieldText},
		{Name: "exchange_rate", Type: sync.FieldFloat},
		{Name: "fee", Type: sync.FieldBigint},
		{Name: "net", Type: sync.FieldBigint},
		{Name: "source", Type: sync.FieldText},
		{Name: "status", Type: sync.FieldText},
		{Name: "type", Type: sync.FieldText},
	},
	Endpoint:   "/v1/balance/history",
	Style:      sync.PaginateReverseID,
	ObjectType: "balance_transaction",
	ChildRows: &sync.ChildTable{
		Key:          "fee_details",
		Name:         "balance_transaction_fee_details",
		ParentColumn: "balance_transaction",
		Fields: []sync.Field{
			{Name: "amount", Type: sync.FieldBigint},
			{Name: "application", Type: sync.FieldText},
			{Name: "currency", Type: sync.FieldText},
			{Name: "description", Type: sync.FieldText},
			{Name: "type", Type: sync.FieldText},
		},
	},
}

var chargesDescriptor = &sync.Descriptor{
	Name:    "charges",
	Schema:  SchemaName,
	IDField: "id",
	IDType:  sync.FieldText,
	Fields: []sync.Field{
		{Name: "amount", Type: sync.FieldBigint},
		{Name: "amount_refunded", Type: sync.FieldBigint},
		{Name: "application", Type: sync.FieldText},
		{Name: "application_fee", Type: sync.FieldText},
		{Name: "balance_transaction", Type: sync.FieldText},
		{Name: "captured", Type: sync.FieldBool},
		{Name: "created", Type: sync.FieldTimeUnix},
		{Name: "currency", Type: sync.FieldText},
		{Name: "customer", Type: sync.FieldText},
		{Name: "description", Type: sync.FieldText},
		{Name: "failure_code", Type: sync.FieldText},
		{Name: "failure_message", Type: sync.FieldText},
		{Name: "fraud_details", Type: sync.FieldJSON},
		{Name: "invoice", Type: sync.FieldText},
		{Name: "metadata", Column: "meta", Type: sync.FieldJSON},
		{Name: "on_behalf_of", Type: sync.FieldText},
		{Name: "order", Column: "order_id", Type: sync.FieldText},
		{Name: "outcome", Type: sync.FieldJSON},
		{Name: "paid", Type: sync.FieldBool},
		{Name: "receipt_email", Type: sync.FieldText},
		{Name: "receipt_number", Type: sync.FieldText},
		{Name: "refunded", Type: sync.FieldBool},
		{Name: "review", Type: sync.FieldText},
		{Name: "shipping", Type: sync.FieldJSON},
		{Name: "source_transfer", Type: sync.FieldText},
		{Name: "statement_descriptor", Type: sync.FieldText},
		{Name: "status", Type: sync.FieldText},
		{Name: "transfer", Type: sync.FieldText},
		{Name: "transfer_group", Type: sync.FieldText},
	},
	Endpoint:   "/v1/charges",
	Style:      sync.PaginateReverseID,
	ObjectType: "charge",
}

var customersDescriptor = &sync.Descriptor{
	Name:    "customers",
	Schema:  SchemaName,
	IDField: "id",
	IDType:  sync.FieldText,
	Fields: []sync.Field{
		{Name: "account_balance", Type: sync.FieldBigint},
		{Name: "business_vat_id", Type: sync.FieldText},
		{Name: "created", Type: sync.FieldTimeUnix},
		{Name: "currency", Type: sync.FieldText},
		{Name: "default_source", Type: sync.FieldText},
		{Name: "delinquent", Type: sync.FieldBool},
		{Name: "description", Type: sync.FieldText},
		{Name: "email", Type: sync.FieldText},
		{Name: "metadata", Column: "meta", Type: sync.FieldJSON},
		{Name: "shipping", Type: sync.FieldJSON},
	},
	Endpoint:   "/v1/customers",
	Style:      sync.PaginateReverseID,
	ObjectType: "customer",
	Embedded: []sync.Embedded{
		{Key: "sources", Descriptor: sourcesDescriptor, FromRecord: true},
	},
}

var sourcesDescriptor = &sync.Descriptor{
	Name:    "sources",
	Schema:  SchemaName,
	IDField: "id",
	IDType:  sync.FieldText,
	Fields: []sync.Field{
		{Name: "amount", Type: sync.FieldBigint},
		{Name: "client_secret", Type: sync.FieldText},
		{Name: "created", Type: sync.FieldTimeUnix},
		{Name: "currency", Type: sync.FieldText},
		{Name: "customer", Type: sync.FieldText},
		{Name: "flow", Type: sync.FieldText},
		{Name: "metadata", Column: "meta", Type: sync.FieldJSON},
		{Name: "owner", Type: sync.FieldJSON},
		{Name: "receiver", Type: sync.FieldJSON},
		{Name: "redirect", Type: sync.FieldJSON},
		{Name: "status", Type: sync.FieldText},
		{Name: "type", Type: sync.FieldText},
		{Name: "usage", Type: sync.FieldText},
	},
	Style:      sync.PaginateNone,
	ObjectType: "source",
}

var disputesDescriptor = &sync.Descriptor{
	Name:    "disputes",
	Schema:  SchemaName,
	IDField: "id",
	IDType:  sync.FieldText,
	Fields: []sync.Field{
		{Name: "amount", Type: sync.FieldBigint},
		{Name: "balance_transaction", Type: sync.FieldText},
		{Name: "balance_transactions", Type: sync.FieldTextArray},
		{Name: "charge", Type: sync.FieldText},
		{Name: "created", Type: sync.FieldTimeUnix},
		{Name: "currency", Type: sync.FieldText},
		{Name: "evidence", Type: sync.FieldJSON},
		{Name: "evidence_details", Type: sync.FieldJSON},
		{Name: "is_charge_refundable", Type: sync.FieldBool},
		{Name: "metadata", Column: "meta", Type: sync.FieldJSON},
		{Name: "reason", Type: sync.FieldText},
		{Name: "status", Type: sync.FieldText},
	},
	Endpoint:   "/v1/disputes",
	Style:      sync.PaginateReverseID,
	ObjectType: "dispute",
}

var payoutsDescriptor = &sync.Descriptor{
	Name:    "payouts",
	Schema:  SchemaName,
	IDField: "id",
	IDType:  sync.FieldText,
	Fields: []sync.Field{
		{Name: "amount", Type: sync.FieldBigint},
		{Name: "arrival_date", Type: sync.FieldTimeUnix},
		{Name: "balance_transaction", Type: sync.FieldText},
		{Name: "created", Type: sync.FieldTimeUnix},
		{Name: "currency", Type: sync.FieldText},
		{Name: "description", Type: sync.FieldText},
		{Name: "destination", Type: sync.FieldText},
		{Name: "failure_balance_transaction", Type: sync.FieldText},
		{Name: "failure_code", Type: sync.FieldText},
		{Name: "failure_message", Type: sync.FieldText},
		{Name: "metadata", Column: "meta", Type: sync.FieldJSON},
		{Name: "method", Type: sync.FieldText},
		{Name: "source_type", Type: sync.FieldText},
		{Name: "statement_descriptor", Type: sync.FieldText},
		{Name: "status", Type: sync.FieldText},
		{Name: "type", Type: sync.FieldText},
	},
	Endpoint:   "/v1/payouts",
	Style:      sync.PaginateReverseID,
	ObjectType: "payout",
}

var refundsDescriptor = &sync.Descriptor{
	Name:    "refunds",
	Schema:  SchemaName,
	IDField: "id",
	IDType:  sync.FieldText,
	Fields: []sync.Field{
		{Name: "amount", Type: sync.FieldBigint},
		{Name: "balance_transaction", Type: sync.FieldText},
		{Name: "charge", Type: sync.FieldText},
		{Name: "created", Type: sync.FieldTimeUnix},
		{Name: "currency", Type: sync.FieldText},
		{Name: "description", Type: sync.FieldText},
		{Name: "reason", Type: sync.FieldText},
		{Name: "receipt_number", Type: sync.FieldText},
		{Name: "status", Type: sync.FieldText},
	},
	Endpoint:   "/v1/refunds",
	Style:      sync.PaginateReverseID,
	ObjectType: "refund",
}

var couponsDescriptor = &sync.Descriptor{
	Name:    "coupons",
	Schema:  SchemaName,
	IDField: "id",
	IDType:  sync.FieldText,
	Fields: []sync.Field{
		{Name: "amount_off", Type: sync.FieldBigint},
		{Name: "created", Type: sync.FieldTimeUnix},
		{Name: "currency", Type: sync.FieldText},
		{Name: "duration", Type: sync.FieldText},
		{Name: "duration_in_months", Type: sync.FieldBigint},
		{Name: "max_redemptions", Type: sync.FieldBigint},
		{Name: "metadata", Column: "meta", Type: sync.FieldJSON},
		{Name: "percent_off", Type: sync.FieldBigint},
		{Name: "redeem_by", Type: sync.FieldTimeUnix},
		{Name: "times_redeemed", Type: sync.FieldBigint},
		{Name: "valid", Type: sync.FieldBool},
	},
	Endpoint:   "/v1/coupons",
	Style:      sync.PaginateReverseID,
	ObjectType: "coupon",
}

var discountsDescriptor = &sync.Descriptor{
	Name:    "discounts",
	Schema:  SchemaName,
	IDField: "id",
	IDType:  sync.FieldText,
	Fields: []sync.Field{
		{Name: "coupon", Type: sync.FieldJSON},
		{Name: "customer", Type: sync.FieldText},
		{Name: "end", Column: "end_at", Type: sync.FieldTimeUnix},
		{Name: "start", Column: "start_at", Type: sync.FieldTimeUnix},
	},
	Style:      sync.PaginateNone,
	ObjectType: "discount",
}

var invoicesDescriptor = &sync.Descriptor{
	Name:    "invoices",
	Schema:  SchemaName,
	IDField: "id",
	IDType:  sync.FieldText,
	Fields: []sync.Field{
		{Name: "amount_due", Type: sync.FieldBigint},
		{Name: "application_fee", Type: sync.FieldBigint},
		{Name: "attempt_count", Type: sync.FieldBigint},
		{Name: "attempted", Type: sync.FieldBool},
		{Name: "charge", Type: sync.FieldText},
		{Name: "closed", Type: sync.FieldBool},
		{Name: "currency", Type: sync.FieldText},
		{Name: "customer", Type: sync.FieldText},
		{Name: "date", Type: sync.FieldTimeUnix},
		{Name: "description", Type: sync.FieldText},
		{Name: "ending_balance", Type: sync.FieldBigint},
		{Name: "forgiven", Type: sync.FieldBool},
		{Name: "metadata", Column: "meta", Type: sync.FieldJSON},
		{Name: "next_payment_attempt", Type: sync.FieldTimeUnix},
		{Name: "paid", Type: sync.FieldBool},
		{Name: "period_end", Type: sync.FieldTimeUnix},
		{Name: "period_start", Type: sync.FieldTimeUnix},
		{Name: "receipt_number", Type: sync.FieldText},
		{Name: "starting_balance", Type: sync.FieldBigint},
		{Name: "statement_descriptor", Type: sync.FieldText},
		{Name: "subscription", Type: sync.FieldText},
		{Name: "subscription_proration_date", Type: sync.FieldBigint},
		{Name: "subtotal", Type: sync.FieldBigint},
		{Name: "tax", Type: sync.FieldBigint},
		{Name: "tax_percent", Type: sync.FieldFloat},
		{Name: "total", Type: sync.FieldBigint},
		{Name: "webhooks_delivered_at", Type: sync.FieldTimeUnix},
	},
	Endpoint:   "/v1/invoices",
	Style:      sync.PaginateReverseID,
	ObjectType: "invoice",
}

var invoiceItemsDescriptor = &sync.Descriptor{
	Name:    "invoiceitems",
	Schema:  SchemaName,
	IDField: "id",
	IDType:  sync.FieldText,
	Fields: []sync.Field{
		{Name: "amount", Type: sync.FieldBigint},
		{Name: "currency", Type: sync.FieldText},
		{Name: "customer", Type: sync.FieldText},
		{Name: "date", Type: sync.FieldTimeUnix},
		{Name: "description", Type: sync.FieldText},
		{Name: "discountable", Type: sync.FieldBool},
		{Name: "invoice", Type: sync.FieldText},
		{Name: "metadata", Column: "meta", Type: sync.FieldJSON},
		{Name: "period", Type: sync.FieldJSON},
		{Name: "plan", Type: sync.FieldJSON},
		{Name: "proration", Type: sync.FieldBool},
		{Name: "quantity", Type: sync.FieldBigint},
		{Name: "subscription", Type: sync.FieldText},
		{Name: "subscription_item", Type: sync.FieldText},
	},
	Endpoint:   "/v1/invoiceitems",
	Style:      sync.PaginateReverseID,
	ObjectType: "invoiceitem",
}

var plansDescriptor = &sync.Descriptor{
	Name:    "plans",
	Schema:  SchemaName,
	IDField: "id",
	IDType:  sync.FieldText,
	Fields: []sync.Field{
		{Name: "amount", Type: sync.FieldBigint},
		{Name: "created", Type: sync.FieldTimeUnix},
		{Name: "currency", Type: sync.FieldText},
		{Name: "interval", Type: sync.FieldText},
		{Name: "interval_count", Type: sync.FieldBigint},
		{Name: "metadata", Column: "meta", Type: sync.FieldJSON},
		{Name: "name", Type: sync.FieldText},
		{Name: "statement_descriptor", Type: sync.FieldText},
		{Name: "trial_period_days", Type: sync.FieldBigint},
	},
	Endpoint:   "/v1/plans",
	Style:      sync.PaginateReverseID,
	ObjectType: "plan",
}

var subscriptionsDescriptor = &sync.Descriptor{
	Name:    "subscriptions",
	Schema:  SchemaName,
	IDField: "id",
	IDType:  sync.FieldText,
	Fields: []sync.Field{
		{Name: "application_fee_percent", Type: sync.FieldFloat},
		{Name: "cancel_at_period_end", Type: sync.FieldBool},
		{Name: "canceled_at", Type: sync.FieldTimeUnix},
		{Name: "created", Type: sync.FieldTimeUnix},
		{Name: "current_period_end", Type: sync.FieldTimeUnix},
		{Name: "current_period_start", Type: sync.FieldTimeUnix},
		{Name: "customer", Type: sync.FieldText},
		{Name: "discount", Type: sync.FieldJSON},
		{Name: "ended_at", Type: sync.FieldTimeUnix},
		{Name: "metadata", Column: "meta", Type: sync.FieldJSON},
		{Name: "plan", Type: sync.FieldJSON},
		{Name: "quantity", Type: sync.FieldBigint},
		{Name: "start", Column: "start_at", Type: sync.FieldTimeUnix},
		{Name: "status", Type: sync.FieldText},
		{Name: "tax_percent", Type: sync.FieldFloat},
		{Name: "trial_end", Type: sync.FieldTimeUnix},
		{Name: "trial_start", Type: sync.FieldTimeUnix},
	},
	Endpoint:   "/v1/subscriptions",
	Style:      sync.PaginateReverseID,
	ObjectType: "subscription",
	Embedded: []sync.Embedded{
		{Key: "items", Descriptor: subscriptionItemsDescriptor, FromRecord: true},
	},
}

var subscriptionItemsDescriptor = &sync.Descriptor{
	Name:    "subscription_items",
	Schema:  SchemaName,
	IDField: "id",
	IDType:  sync.FieldText,
	Fields: []sync.Field{
		{Name: "created", Type: sync.FieldTimeUnix},
		{Name: "plan", Type: sync.FieldJSON},
		{Name: "quantity", Type: sync.FieldBigint},
		{Name: "subscription", Type: sync.FieldText},
	},
	Style:      sync.PaginateNone,
	ObjectType: "subscription_item",
}

var transfersDescriptor = &sync.Descriptor{
	Name:    "transfers",
	Schema:  SchemaName,
	IDField: "id",
	IDType:  sync.FieldText,
	Fields: []sync.Field{
		{Name: "amount", Type: sync.FieldBigint},
		{Name: "amount_reversed", Type: sync.FieldBigint},
		{Name: "balance_transaction", Type: sync.FieldText},
		{Name: "created", Type: sync.FieldTimeUnix},
		{Name: "currency", Type: sync.FieldText},
		{Name: "description", Type: sync.FieldText},
		{Name: "destination", Type: sync.FieldText},
		{Name: "destination_payment", Type: sync.FieldText},
		{Name: "metadata", Column: "meta", Type: sync.FieldJSON},
		{Name: "reversed", Type: sync.FieldBool},
		{Name: "source_transaction", Type: sync.FieldText},
		{Name: "source_type", Type: sync.FieldText},
		{Name: "transfer_group", Type: sync.FieldText},
	},
	Endpoint:   "/v1/transfers",
	Style:      sync.PaginateReverseID,
	ObjectType: "transfer",
	Embedded: []sync.Embedded{
		{Key: "reversals", Descriptor: transferReversalsDescriptor, FromRecord: true},
	},
}

var transferReversalsDescriptor = &sync.Descriptor{
	Name:    "transfer_reversals",
	Schema:  SchemaName,
	IDField: "id",
	IDType:  sync.FieldText,
	Fields: []sync.Field{
		{Name: "amount", Type: sync.FieldBigint},
		{Name: "balance_transaction", Type: sync.FieldText},
		{Name: "created", Type: sync.FieldTimeUnix},
		{Name: "currency", Type: sync.FieldText},
		{Name: "metadata", Column: "meta", Type: sync.FieldJSON},
		{Name: "transfer", Type: sync.FieldText},
	},
	Style:      sync.PaginateNone,
	ObjectType: "transfer_reversal",
}

var descriptors = []*sync.Descriptor{
	balanceTransactionsDescriptor,
	chargesDescriptor,
	customersDescriptor,
	sourcesDescriptor,
	disputesDescriptor,
	payoutsDescriptor,
	refundsDescriptor,
	couponsDescriptor,
	discountsDescriptor,
	invoicesDescriptor,
	invoiceItemsDescriptor,
	plansDescriptor,
	subscriptionsDescriptor,
	subscriptionItemsDescriptor,
	transfersDescriptor,
	transferReversalsDescriptor,
}

var descriptorsByObjectType = buildObjectTypeIndex()

func buildObjectTypeIndex() map[string]*sync.Descriptor {
	index := make(map[string]*sync.Descriptor, len(descriptors))
	for _, d := range descriptors {
		index[d.ObjectType] = d
	}
	return index
}

var provider = &sync.Provider{
	Name:      model.ProviderStripe,
	Schema:    SchemaName,
	PageLimit: pageLimit,
	BaseURL: func(account *model.Account) string {
		return "https://api.stripe.com"
	},
	Authorize: func(account *model.Account, req *http.Request) {
		// The secret key is the basic auth username, password empty.
		req.SetBasicAuth(account.APIKey, "")
	},
	RequestHeaders: map[string]string{
		"Stripe-Version": apiVersion,
	},
	Descriptors: descriptors,
	Events: &sync.EventFeed{
		Endpoint: "/v1/events",
		Resource: "events",
		Route:    RouteObjectType,
	},
}

// RouteObjectType returns the descriptor mirroring the given event
// payload object type, nil for object types that are not mirrored.
func RouteObjectType(objectType string) *sync.Descriptor {
	return descriptorsByObjectType[objectType]
}

func GetProvider() *sync.Provider {
	return provider
}
