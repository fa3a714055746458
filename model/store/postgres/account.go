package postgres

import (
	"net/http"

	"github.com/jinzhu/gorm"
	log "github.com/sirupsen/logrus"

	"pipet/model/model"
)

func (pg *Postgres) CreateAccount(account *model.Account) int {
	logCtx := log.WithFields(log.Fields{"provider": account.Provider,
		"workspace_id": account.WorkspaceID})

	if account.Provider != model.ProviderZendesk && account.Provider != model.ProviderStripe {
		logCtx.Error("Failed to create account. Unknown provider.")
		return http.StatusBadRequest
	}

	if account.APIKey == "" {
		logCtx.Error("Failed to create account. Missing api key.")
		return http.StatusBadRequest
	}

	if account.Provider == model.ProviderZendesk && account.Subdomain == "" {
		logCtx.Error("Failed to create zendesk account. Missing subdomain.")
		return http.StatusBadRequest
	}

	db := getDB()
	if err := db.Create(account).Error; err != nil {
		logCtx.WithError(err).Error("Failed to create account.")
		return http.StatusInternalServerError
	}

	return http.StatusCreated
}

func (pg *Postgres) GetAccount(id uint64) (*model.Account, int) {
	if id == 0 {
		log.Error("Failed to get account. Invalid account id.")
		return nil, http.StatusBadRequest
	}

	var account model.Account
	db := getDB()
	if err := db.Where("id = ?", id).First(&account).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, http.StatusNotFound
		}

		log.WithField("account_id", id).WithError(err).Error("Failed to get account.")
		return nil, http.StatusInternalServerError
	}

	return &account, http.StatusFound
}

// GetAccountByCredentials authenticates inbound webhook credentials
// against an account's own key, never the generic service credential.
// Zendesk sends subdomain/api key, stripe sends the api key alone.
func (pg *Postgres) GetAccountByCredentials(provider, username, apiKey string) (*model.Account, int) {
	if provider == "" || apiKey == "" {
		return nil, http.StatusBadRequest
	}

	db := getDB()
	query := db.Where("provider = ? AND api_key = ?", provider, apiKey)
	if provider == model.ProviderZendesk {
		query = query.Where("subdomain = ?", username)
	}

	var account model.Account
	if err := query.First(&account).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, http.StatusNotFound
		}

		log.WithField("provider", provider).WithError(err).Error(
			"Failed to get account by credentials.")
		return nil, http.StatusInternalServerError
	}

	return &account, http.StatusFound
}

func (pg *Postgres) GetAccountsByProvider(provider string) ([]model.Account, int) {
	var accounts []model.Account

	db := getDB()
	if err := db.Where("provider = ?", provider).Find(&accounts).Error; err != nil {
		log.WithField("provider", provider).WithError(err).Error(
			"Failed to get accounts by provider.")
		return accounts, http.StatusInternalServerError
	}

	if len(accounts) == 0 {
		return accounts, http.StatusNotFound
	}

	return accounts, http.StatusFound
}

func (pg *Postgres) DeleteAccount(id uint64) int {
	if id == 0 {
		return http.StatusBadRequest
	}

	db := getDB()
	if err := db.Where("id = ?", id).Delete(&model.Account{}).Error; err != nil {
		log.WithField("account_id", id).WithError(err).Error("Failed to delete account.")
		return http.StatusInternalServerError
	}

	return http.StatusAccepted
}

// OverrideCursor forces a resource's cursor to an explicit value and
// clears its backfill flag, so the next sync job re-walks the resource
// from that point.
func (pg *Postgres) OverrideCursor(id uint64, resource, cursor string) int {
	if id == 0 || resource == "" {
		return http.StatusBadRequest
	}

	db := getDB()
	err := db.Exec(`UPDATE accounts SET
		cursors = coalesce(cursors, '{}'::jsonb) || jsonb_build_object(?::text, ?::text),
		backfilled = coalesce(backfilled, '{}'::jsonb) - ?::text,
		updated_at = now() WHERE id = ?`, resource, cursor, resource, id).Error
	if err != nil {
		log.WithFields(log.Fields{"account_id": id, "resource": resource}).
			WithError(err).Error("Failed to override cursor.")
		return http.StatusInternalServerError
	}

	return http.StatusAccepted
}

// ResetSyncState clears the cursor and backfill maps so the next sync
// job starts a fresh backfill. Used together with schema drop/create
// on account reset.
func (pg *Postgres) ResetSyncState(id uint64) int {
	if id == 0 {
		return http.StatusBadRequest
	}

	db := getDB()
	err := db.Exec(`UPDATE accounts SET cursors = '{}'::jsonb,
		backfilled = '{}'::jsonb, updated_at = now() WHERE id = ?`, id).Error
	if err != nil {
		log.WithField("account_id", id).WithError(err).Error("Failed to reset sync state.")
		return http.StatusInternalServerError
	}

	return http.StatusAccepted
}
