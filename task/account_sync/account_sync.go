package account_sync

import (
	"fmt"
	"net/http"
	"time"

	"github.com/RichardKnop/machinery/v1/tasks"
	"github.com/RichardKnop/redsync"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	C "pipet/config"
	Int "pipet/integration"
	"pipet/model/store"
	"pipet/sync"
)

// TaskSyncAccount is the machinery task name for one account sync run.
const TaskSyncAccount = "sync_account"

// A held mutex means a prior run for the account is still in flight.
// The expiry bounds lock leakage when a worker dies mid-run.
const syncMutexExpiry = 4 * time.Hour

func accountSyncMutexName(accountID uint64) string {
	return fmt.Sprintf("sync:account:%d", accountID)
}

// SyncAccount runs one full sync pass for the account. Registered on
// the queue worker under TaskSyncAccount. At most one run per account
// executes at a time, enforced with a redis mutex. An already-locked
// account is skipped without error so scheduled overlaps never pile up
// retries. A non-empty resource/cursor pair overrides that resource's
// cursor before the run, forcing a re-walk from the given point.
func SyncAccount(accountID int64, resource, cursor string) error {
	logCtx := log.WithFields(log.Fields{"account_id": accountID})

	rs := redsync.New([]redsync.Pool{C.GetServices().Redis})
	mutex := rs.NewMutex(accountSyncMutexName(uint64(accountID)),
		redsync.SetExpiry(syncMutexExpiry), redsync.SetTries(1))
	if err := mutex.Lock(); err != nil {
		logCtx.Info("Skipping sync, account has a run in flight.")
		return nil
	}
	defer mutex.Unlock()

	if resource != "" {
		errCode := store.GetStore().OverrideCursor(uint64(accountID), resource, cursor)
		if errCode != http.StatusAccepted {
			return fmt.Errorf("cursor override failed for account %d resource %s",
				accountID, resource)
		}
		logCtx.WithFields(log.Fields{"resource": resource,
			"cursor": cursor}).Info("Cursor override applied before sync.")
	}

	account, errCode := store.GetStore().GetAccount(uint64(accountID))
	if errCode != http.StatusFound {
		return fmt.Errorf("account %d not found for sync", accountID)
	}

	provider := Int.ProviderByName(account.Provider)
	if provider == nil {
		return fmt.Errorf("unknown provider %s on account %d", account.Provider, accountID)
	}

	orchestrator := sync.NewOrchestrator(store.GetStore(), provider,
		sync.NewClient(provider))
	statuses, hasFailure := orchestrator.SyncAccount(account)

	for i := range statuses {
		logCtx.WithFields(log.Fields{"resource": statuses[i].Resource,
			"status": statuses[i].Status, "pages": statuses[i].Pages,
			"records": statuses[i].Records, "message": statuses[i].Message,
		}).Info("Account sync resource status.")
	}

	if hasFailure {
		return fmt.Errorf("sync failed for account %d", accountID)
	}

	return nil
}

// EnqueueSyncJob publishes a sync job for the account and returns the
// task id. Resource and cursor are usually empty; passing both forces
// a re-walk of that resource from the given cursor.
func EnqueueSyncJob(accountID uint64, resource, cursor string) (string, error) {
	signature := &tasks.Signature{
		Name:       TaskSyncAccount,
		UUID:       fmt.Sprintf("task_%s_%s", TaskSyncAccount, uuid.New().String()),
		RoutingKey: C.SyncJobsQueue,
		Args: []tasks.Arg{
			{Type: "int64", Value: int64(accountID)},
			{Type: "string", Value: resource},
			{Type: "string", Value: cursor},
		},
	}

	if _, err := C.GetServices().Queue.SendTask(signature); err != nil {
		return "", err
	}

	return signature.UUID, nil
}
