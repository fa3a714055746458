package model

import (
	"time"

	"github.com/jinzhu/gorm/dialects/postgres"

	U "pipet/util"
)

// Providers with mirroring support.
const (
	ProviderZendesk = "zendesk"
	ProviderStripe  = "stripe"
)

// Account holds one tenant's connection to an external provider along
// with the per-resource sync state. Cursors and Backfilled are maps of
// resource name to cursor value / completion flag, persisted as jsonb
// on the account row so a page's writes and its cursor advance can
// commit in one transaction.
type Account struct {
	ID        uint64 `gorm:"primary_key" json:"id"`
	Provider  string `gorm:"not null" json:"provider"`
	Subdomain string `json:"subdomain"`
	// AdminEmail pairs with the api key for zendesk basic auth.
	AdminEmail string          `json:"admin_email"`
	APIKey     string          `gorm:"column:api_key;not null" json:"-"`
	Cursors    *postgres.Jsonb `json:"cursors"`
	Backfilled *postgres.Jsonb `json:"backfilled"`
	// Remote webhook registration ids, set by the one-time setup call.
	TargetID    uint64    `json:"target_id"`
	TriggerID   uint64    `json:"trigger_id"`
	WorkspaceID uint64    `gorm:"not null" json:"workspace_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (a *Account) TableName() string {
	return "accounts"
}

// Cursor returns the persisted cursor for a resource, empty string if
// the resource has never synced.
func (a *Account) Cursor(resource string) string {
	if a.Cursors == nil {
		return ""
	}

	cursors, err := U.DecodePostgresJsonbAsStringMap(a.Cursors)
	if err != nil {
		return ""
	}

	return cursors[resource]
}

// IsBackfilled returns whether a resource completed its historical walk.
func (a *Account) IsBackfilled(resource string) bool {
	if a.Backfilled == nil {
		return false
	}

	backfilled, err := U.DecodePostgresJsonbAsBoolMap(a.Backfilled)
	if err != nil {
		return false
	}

	return backfilled[resource]
}

// SetCursor updates the in-memory cursor map. The persisted copy is
// only written by the store together with the page's statements.
func (a *Account) SetCursor(resource, cursor string) error {
	cursors, err := U.DecodePostgresJsonbAsStringMap(a.Cursors)
	if err != nil {
		return err
	}

	cursors[resource] = cursor
	cursorsJsonb, err := U.EncodeToPostgresJsonb(cursors)
	if err != nil {
		return err
	}

	a.Cursors = cursorsJsonb
	return nil
}

// SetBackfilled updates the in-memory backfill map.
func (a *Account) SetBackfilled(resource string, done bool) error {
	backfilled, err := U.DecodePostgresJsonbAsBoolMap(a.Backfilled)
	if err != nil {
		return err
	}

	backfilled[resource] = done
	backfilledJsonb, err := U.EncodeToPostgresJsonb(backfilled)
	if err != nil {
		return err
	}

	a.Backfilled = backfilledJsonb
	return nil
}
