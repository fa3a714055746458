package zendesk

import (
	"fmt"
	"net/http"

	"pipet/model/model"
	"pipet/sync"
)

const SchemaName = "zendesk"

// Zendesk's incremental export endpoints page forward in time with a
// start_time cursor and return at most 1000 records per page. A full
// page means more data is waiting.
const pageLimit = 1000

var ticketsDescriptor = &sync.Descriptor{
	Name:    "tickets",
	Schema:  SchemaName,
	IDField: "id",
	IDType:  sync.FieldBigint,
	Fields: []sync.Field{
		{Name: "created_at", Type: sync.FieldTimeISO},
		{Name: "updated_at", Type: sync.FieldTimeISO},
		{Name: "external_id", Type: sync.FieldText},
		{Name: "type", Type: sync.FieldText},
		{Name: "subject", Type: sync.FieldText},
		{Name: "description", Type: sync.FieldText},
		{Name: "priority", Type: sync.FieldText},
		{Name: "status", Type: sync.FieldText},
		{Name: "recipient", Type: sync.FieldText},
		{Name: "requester_id", Type: sync.FieldBigint},
		{Name: "submitter_id", Type: sync.FieldBigint},
		{Name: "group_id", Type: sync.FieldBigint},
		{Name: "collaborator_ids", Type: sync.FieldBigintArray},
		{Name: "has_incidents", Type: sync.FieldBool},
		{Name: "due_at", Type: sync.FieldTimeISO},
		{Name: "tags", Type: sync.FieldTextArray},
		{Name: "via", Type: sync.FieldJSON},
		{Name: "followup_ids", Type: sync.FieldBigintArray},
	},
	Endpoint: "/api/v2/incremental/tickets.json?start_time=%s&include=users,groups",
	ListKey:  "tickets",
	Style:    sync.PaginateForwardTime,
	Embedded: []sync.Embedded{
		{Key: "users", Descriptor: usersDescriptor},
		{Key: "groups", Descriptor: groupsDescriptor},
	},
}

var usersDescriptor = &sync.Descriptor{
	Name:    "users",
	Schema:  SchemaName,
	IDField: "id",
	IDType:  sync.FieldBigint,
	Fields: []sync.Field{
		{Name: "email", Type: sync.FieldText},
		{Name: "name", Type: sync.FieldText},
		{Name: "active", Type: sync.FieldBool},
		{Name: "alias", Type: sync.FieldText},
		{Name: "chat_only", Type: sync.FieldBool},
		{Name: "created_at", Type: sync.FieldTimeISO},
		{Name: "custom_role_id", Type: sync.FieldBigint},
		{Name: "role_type", Type: sync.FieldBigint},
		{Name: "details", Type: sync.FieldText},
		{Name: "external_id", Type: sync.FieldText},
		{Name: "last_login_at", Type: sync.FieldTimeISO},
		{Name: "locale", Type: sync.FieldText},
		{Name: "locale_id", Type: sync.FieldBigint},
		{Name: "moderator", Type: sync.FieldBool},
		{Name: "notes", Type: sync.FieldText},
		{Name: "only_private_comments", Type: sync.FieldBool},
		{Name: "organization_id", Type: sync.FieldBigint},
		{Name: "default_group_id", Type: sync.FieldBigint},
		{Name: "phone", Type: sync.FieldText},
		{Name: "shared_phone_number", Type: sync.FieldBool},
		{Name: "restricted_agent", Type: sync.FieldBool},
		{Name: "role", Type: sync.FieldText},
		{Name: "shared", Type: sync.FieldBool},
		{Name: "shared_agent", Type: sync.FieldBool},
		{Name: "signature", Type: sync.FieldText},
		{Name: "suspended", Type: sync.FieldBool},
		{Name: "tags", Type: sync.FieldTextArray},
		{Name: "ticket_restriction", Type: sync.FieldText},
		{Name: "time_zone", Type: sync.FieldText},
		{Name: "two_factor_auth_enabled", Type: sync.FieldBool},
		{Name: "updated_at", Type: sync.FieldTimeISO},
		{Name: "verified", Type: sync.FieldBool},
		{Name: "url", Type: sync.FieldText},
		{Name: "user_fields", Type: sync.FieldJSON},
	},
	Endpoint: "/api/v2/incremental/users.json?start_time=%s&include=identities",
	ListKey:  "users",
	Style:    sync.PaginateForwardTime,
	Embedded: []sync.Embedded{
		{Key: "identities", Descriptor: userIdentitiesDescriptor},
	},
}

var userIdentitiesDescriptor = &sync.Descriptor{
	Name:    "user_identities",
	Schema:  SchemaName,
	IDField: "id",
	IDType:  sync.FieldBigint,
	Fields: []sync.Field{
		{Name: "url", Type: sync.FieldText},
		{Name: "user_id", Type: sync.FieldBigint},
		{Name: "type", Type: sync.FieldText},
		{Name: "value", Type: sync.FieldText},
		{Name: "verified", Type: sync.FieldBool},
		{Name: "primary", Column: "is_primary", Type: sync.FieldBool},
		{Name: "created_at", Type: sync.FieldTimeISO},
		{Name: "updated_at", Type: sync.FieldTimeISO},
		{Name: "undelivered_count", Type: sync.FieldBigint},
		{Name: "deliverable_state", Type: sync.FieldText},
	},
	Style: sync.PaginateNone,
}

var organizationsDescriptor = &sync.Descriptor{
	Name:    "organizations",
	Schema:  SchemaName,
	IDField: "id",
	IDType:  sync.FieldBigint,
	Fields: []sync.Field{
		{Name: "external_id", Type: sync.FieldText},
		{Name: "name", Type: sync.FieldText},
		{Name: "created_at", Type: sync.FieldTimeISO},
		{Name: "updated_at", Type: sync.FieldTimeISO},
		{Name: "domain_names", Type: sync.FieldTextArray},
		{Name: "details", Type: sync.FieldText},
		{Name: "notes", Type: sync.FieldText},
		{Name: "group_id", Type: sync.FieldBigint},
		{Name: "shared_tickets", Type: sync.FieldBool},
		{Name: "shared_comments", Type: sync.FieldBool},
		{Name: "tags", Type: sync.FieldTextArray},
		{Name: "organization_fields", Type: sync.FieldJSON},
	},
	Endpoint: "/api/v2/incremental/organizations.json?start_time=%s",
	ListKey:  "organizations",
	Style:    sync.PaginateForwardTime,
}

var groupsDescriptor = &sync.Descriptor{
	Name:    "groups",
	Schema:  SchemaName,
	IDField: "id",
	IDType:  sync.FieldBigint,
	Fields: []sync.Field{
		{Name: "created_at", Type: sync.FieldTimeISO},
		{Name: "deleted", Type: sync.FieldBool},
		{Name: "name", Type: sync.FieldText},
		{Name: "updated_at", Type: sync.FieldTimeISO},
		{Name: "url", Type: sync.FieldText},
	},
	Style: sync.PaginateNone,
}

// Ticket comments are immutable at the source and fetched per ticket
// from the webhook path, never from their own export endpoint.
var ticketCommentsDescriptor = &sync.Descriptor{
	Name:    "ticket_comments",
	Schema:  SchemaName,
	IDField: "id",
	IDType:  sync.FieldBigint,
	Fields: []sync.Field{
		{Name: "type", Type: sync.FieldText},
		{Name: "body", Type: sync.FieldText},
		{Name: "public", Type: sync.FieldBool},
		{Name: "author_id", Type: sync.FieldBigint},
		{Name: "ticket_id", Type: sync.FieldBigint},
		{Name: "created_at", Type: sync.FieldTimeISO},
	},
	Style:      sync.PaginateNone,
	AppendOnly: true,
}

var provider = &sync.Provider{
	Name:      model.ProviderZendesk,
	Schema:    SchemaName,
	PageLimit: pageLimit,
	BaseURL: func(account *model.Account) string {
		return fmt.Sprintf("https://%s.zendesk.com", account.Subdomain)
	},
	Authorize: func(account *model.Account, req *http.Request) {
		// API token auth - username is the admin email suffixed with
		// /token, password is the account's API key.
		req.SetBasicAuth(account.AdminEmail+"/token", account.APIKey)
	},
	Descriptors: []*sync.Descriptor{
		ticketsDescriptor,
		usersDescriptor,
		userIdentitiesDescriptor,
		organizationsDescriptor,
		groupsDescriptor,
		ticketCommentsDescriptor,
	},
}

func GetProvider() *sync.Provider {
	return provider
}
