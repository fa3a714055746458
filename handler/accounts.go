package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	Int "pipet/integration"
	"pipet/model/model"
	"pipet/model/store"
	"pipet/task/account_sync"
)

// Kept injectable so handler tests run without a live queue broker.
var enqueueSyncJob = account_sync.EnqueueSyncJob

// Test command.
// curl -H "Content-Type: application/json" -i -X POST http://localhost:8080/accounts -d '{"provider": "zendesk", "subdomain": "acme", "admin_email": "ops@acme.com", "api_key": "KEY", "workspace_id": 1}'
func CreateAccountHandler(c *gin.Context) {
	r := c.Request

	var payload struct {
		Provider    string `json:"provider"`
		Subdomain   string `json:"subdomain"`
		AdminEmail  string `json:"admin_email"`
		APIKey      string `json:"api_key"`
		WorkspaceID uint64 `json:"workspace_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		log.WithError(err).Error("CreateAccount failed. Json decoding failed.")
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "json decoding : " + err.Error(),
			"status": http.StatusBadRequest,
		})
		return
	}

	provider := Int.ProviderByName(payload.Provider)
	if provider == nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Unknown provider."})
		return
	}
	if payload.APIKey == "" || payload.WorkspaceID == 0 {
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}
	if payload.Provider == model.ProviderZendesk &&
		(payload.Subdomain == "" || payload.AdminEmail == "") {
		c.AbortWithStatusJSON(http.StatusBadRequest,
			gin.H{"error": "Subdomain and admin email are required."})
		return
	}

	account := &model.Account{
		Provider:    payload.Provider,
		Subdomain:   payload.Subdomain,
		AdminEmail:  payload.AdminEmail,
		APIKey:      payload.APIKey,
		WorkspaceID: payload.WorkspaceID,
	}

	logCtx := log.WithFields(log.Fields{"provider": payload.Provider,
		"workspace_id": payload.WorkspaceID})

	errCode := store.GetStore().CreateAccount(account)
	if errCode != http.StatusCreated {
		logCtx.WithField("err_code", errCode).Error("CreateAccount failed on store.")
		c.AbortWithStatusJSON(errCode, gin.H{"error": "Creating account failed."})
		return
	}

	// Mirror tables are provisioned up front so the first sync run has
	// somewhere to write.
	errCode = store.GetStore().ProvisionSchema(provider.Schema, provider.SchemaDDL())
	if errCode != http.StatusCreated {
		logCtx.WithField("err_code", errCode).Error("CreateAccount failed on schema provisioning.")
		c.AbortWithStatusJSON(errCode, gin.H{"error": "Provisioning schema failed."})
		return
	}

	taskID, err := enqueueSyncJob(account.ID, "", "")
	if err != nil {
		logCtx.WithError(err).Error("CreateAccount failed to enqueue initial sync.")
		c.AbortWithStatusJSON(http.StatusInternalServerError,
			gin.H{"error": "Enqueuing initial sync failed."})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"account": account, "sync_task_id": taskID})
}

func GetAccountHandler(c *gin.Context) {
	accountID, err := strconv.ParseUint(c.Params.ByName("account_id"), 10, 64)
	if err != nil {
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	account, errCode := store.GetStore().GetAccount(accountID)
	if errCode != http.StatusFound {
		c.AbortWithStatus(errCode)
		return
	}

	c.JSON(http.StatusOK, account)
}

// DeactivateAccountHandler removes the account's connection. Mirrored
// data is left in place, dropping it is an explicit reset concern.
func DeactivateAccountHandler(c *gin.Context) {
	accountID, err := strconv.ParseUint(c.Params.ByName("account_id"), 10, 64)
	if err != nil {
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	errCode := store.GetStore().DeleteAccount(accountID)
	if errCode != http.StatusAccepted {
		c.AbortWithStatusJSON(errCode, gin.H{"error": "Deactivating account failed."})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "deactivated"})
}

// ResetAccountHandler deletes the account's mirrored rows and clears
// its cursors, forcing the next run to backfill from scratch. The
// provider tables are shared across accounts, so the deletion is
// scoped to this account and other tenants' rows are untouched.
func ResetAccountHandler(c *gin.Context) {
	accountID, err := strconv.ParseUint(c.Params.ByName("account_id"), 10, 64)
	if err != nil {
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	logCtx := log.WithFields(log.Fields{"account_id": accountID})

	account, errCode := store.GetStore().GetAccount(accountID)
	if errCode != http.StatusFound {
		c.AbortWithStatus(errCode)
		return
	}

	provider := Int.ProviderByName(account.Provider)
	if provider == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError,
			gin.H{"error": "Unknown provider on account."})
		return
	}

	// Provisioning is idempotent; it repairs missing tables before the
	// backfill re-runs.
	if errCode = store.GetStore().ProvisionSchema(provider.Schema, provider.SchemaDDL()); errCode != http.StatusCreated {
		logCtx.WithField("err_code", errCode).Error("ResetAccount failed on schema provisioning.")
		c.AbortWithStatusJSON(errCode, gin.H{"error": "Provisioning schema failed."})
		return
	}
	if errCode = store.GetStore().DeleteAccountData(accountID, provider.Schema,
		provider.TableNames()); errCode != http.StatusAccepted {
		logCtx.WithField("err_code", errCode).Error("ResetAccount failed on data deletion.")
		c.AbortWithStatusJSON(errCode, gin.H{"error": "Deleting mirrored data failed."})
		return
	}
	if errCode = store.GetStore().ResetSyncState(accountID); errCode != http.StatusAccepted {
		logCtx.WithField("err_code", errCode).Error("ResetAccount failed on sync state reset.")
		c.AbortWithStatusJSON(errCode, gin.H{"error": "Resetting sync state failed."})
		return
	}

	taskID, err := enqueueSyncJob(accountID, "", "")
	if err != nil {
		logCtx.WithError(err).Error("ResetAccount failed to enqueue backfill.")
		c.AbortWithStatusJSON(http.StatusInternalServerError,
			gin.H{"error": "Enqueuing backfill failed."})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "reset", "sync_task_id": taskID})
}

// TriggerSyncHandler enqueues a sync run for the account and returns
// the job's task id. The worker enforces one run per account, an
// overlapping trigger is consumed and skipped there. An optional body
// {"resource": ..., "cursor": ...} forces a re-walk of one resource
// from an explicit cursor.
func TriggerSyncHandler(c *gin.Context) {
	accountID, err := strconv.ParseUint(c.Params.ByName("account_id"), 10, 64)
	if err != nil {
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	var payload struct {
		Resource string `json:"resource"`
		Cursor   string `json:"cursor"`
	}
	if c.Request.Body != nil && c.Request.ContentLength > 0 {
		if err := json.NewDecoder(c.Request.Body).Decode(&payload); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest,
				gin.H{"error": "json decoding : " + err.Error()})
			return
		}
	}

	if _, errCode := store.GetStore().GetAccount(accountID); errCode != http.StatusFound {
		c.AbortWithStatus(errCode)
		return
	}

	taskID, err := enqueueSyncJob(accountID, payload.Resource, payload.Cursor)
	if err != nil {
		log.WithFields(log.Fields{"account_id": accountID}).WithError(err).
			Error("TriggerSync failed to enqueue.")
		c.AbortWithStatusJSON(http.StatusInternalServerError,
			gin.H{"error": "Enqueuing sync failed."})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"sync_task_id": taskID})
}
