package store

import (
	"pipet/model/model"
	storePostgres "pipet/model/store/postgres"
)

// Model - Interface of all methods to be implemented by the stores.
type Model interface {
	// account
	CreateAccount(account *model.Account) int
	GetAccount(id uint64) (*model.Account, int)
	GetAccountByCredentials(provider, username, apiKey string) (*model.Account, int)
	GetAccountsByProvider(provider string) ([]model.Account, int)
	DeleteAccount(id uint64) int
	OverrideCursor(id uint64, resource, cursor string) int
	ResetSyncState(id uint64) int

	// sync writes
	CommitPage(account *model.Account, commit *model.PageCommit) int
	ExecuteStatements(statements []model.Statement) int

	// provisioning
	ProvisionSchema(schema string, ddl []string) int
	DeleteAccountData(accountID uint64, schema string, tables []string) int
}

var storeOverride Model

// GetStore returns the store implementation to use. Postgres is the
// only datastore at the moment.
func GetStore() Model {
	if storeOverride != nil {
		return storeOverride
	}
	return &storePostgres.Postgres{}
}

// SetStore overrides the default store. Used by tests.
func SetStore(store Model) {
	storeOverride = store
}
