package handler

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	IntZendesk "pipet/integration/zendesk"
	"pipet/model/model"
	"pipet/model/store"
	"pipet/sync"
)

type accountDataDeletion struct {
	accountID uint64
	schema    string
	tables    []string
}

// accountsFakeStore records the mutations the account lifecycle
// handlers issue. The webhook fake provides the remaining methods.
type accountsFakeStore struct {
	webhookFakeStore
	storedAccount *model.Account
	provisioned   []string
	deletions     []accountDataDeletion
	resets        []uint64
}

func (f *accountsFakeStore) GetAccount(id uint64) (*model.Account, int) {
	if f.storedAccount == nil || f.storedAccount.ID != id {
		return nil, http.StatusNotFound
	}
	return f.storedAccount, http.StatusFound
}

func (f *accountsFakeStore) ProvisionSchema(schema string, ddl []string) int {
	f.provisioned = append(f.provisioned, schema)
	return http.StatusCreated
}

func (f *accountsFakeStore) DeleteAccountData(id uint64, schema string, tables []string) int {
	f.deletions = append(f.deletions, accountDataDeletion{id, schema, tables})
	return http.StatusAccepted
}

func (f *accountsFakeStore) ResetSyncState(id uint64) int {
	f.resets = append(f.resets, id)
	return http.StatusAccepted
}

func newAccountsRouter(fs *accountsFakeStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	store.SetStore(fs)

	r := gin.New()
	r.POST("/accounts/:account_id/reset", ResetAccountHandler)
	r.POST("/accounts/:account_id/sync", TriggerSyncHandler)
	return r
}

func TestResetAccountDeletesOnlyThatAccountsRows(t *testing.T) {
	fs := &accountsFakeStore{storedAccount: &model.Account{
		ID: 1, Provider: model.ProviderZendesk, Subdomain: "acme", APIKey: "key"}}
	r := newAccountsRouter(fs)
	defer store.SetStore(nil)

	var enqueued []uint64
	restore := enqueueSyncJob
	enqueueSyncJob = func(accountID uint64, resource, cursor string) (string, error) {
		enqueued = append(enqueued, accountID)
		return "task_1", nil
	}
	defer func() { enqueueSyncJob = restore }()

	// The mirror tables are shared across accounts, keyed by
	// (account_id, id). A second account's rows land in the very same
	// table, so reset must never touch anything table-wide.
	d := IntZendesk.GetProvider().DescriptorByName("tickets")
	raw := map[string]interface{}{"id": 4166, "status": "open"}
	recordA, err := d.Parse(raw, 1)
	assert.NoError(t, err)
	recordB, err := d.Parse(raw, 2)
	assert.NoError(t, err)
	assert.Contains(t, sync.BuildUpsert(recordA).SQL, "INSERT INTO zendesk.tickets")
	assert.Equal(t, sync.BuildUpsert(recordA).SQL, sync.BuildUpsert(recordB).SQL)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/accounts/1/reset", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)

	// The deletion is scoped by account id and enumerates the provider
	// tables, other tenants' rows stay in place.
	assert.Len(t, fs.deletions, 1)
	assert.Equal(t, uint64(1), fs.deletions[0].accountID)
	assert.Equal(t, IntZendesk.SchemaName, fs.deletions[0].schema)
	assert.Contains(t, fs.deletions[0].tables, "tickets")
	assert.Contains(t, fs.deletions[0].tables, "ticket_comments")

	assert.Equal(t, []string{IntZendesk.SchemaName}, fs.provisioned)
	assert.Equal(t, []uint64{1}, fs.resets)
	assert.Equal(t, []uint64{1}, enqueued)
}

func TestTriggerSyncPassesCursorOverride(t *testing.T) {
	fs := &accountsFakeStore{storedAccount: &model.Account{
		ID: 1, Provider: model.ProviderZendesk, Subdomain: "acme", APIKey: "key"}}
	r := newAccountsRouter(fs)
	defer store.SetStore(nil)

	type job struct {
		accountID        uint64
		resource, cursor string
	}
	var jobs []job
	restore := enqueueSyncJob
	enqueueSyncJob = func(accountID uint64, resource, cursor string) (string, error) {
		jobs = append(jobs, job{accountID, resource, cursor})
		return "task_2", nil
	}
	defer func() { enqueueSyncJob = restore }()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/accounts/1/sync",
		bytes.NewBufferString(`{"resource": "tickets", "cursor": "1400000000"}`))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []job{{1, "tickets", "1400000000"}}, jobs)
}
