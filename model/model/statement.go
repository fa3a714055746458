package model

// Statement is one prepared write against a mirrored table. Statements
// for a page are executed in a single transaction together with the
// cursor advance for that page.
type Statement struct {
	SQL  string
	Args []interface{}
}

// PageCommit carries everything one synced page writes atomically:
// the upsert statements, the cursor advance and optionally the
// backfill-completion flip. PrevCursor guards against a concurrent
// writer - the commit must abort if the persisted cursor no longer
// matches it.
type PageCommit struct {
	Resource       string
	Statements     []Statement
	Cursor         string
	PrevCursor     string
	MarkBackfilled bool
}

// SyncStatus reports the outcome of one resource's sync loop.
type SyncStatus struct {
	AccountID uint64 `json:"account_id"`
	Resource  string `json:"resource"`
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	Pages     int    `json:"pages"`
	Records   int    `json:"records"`
}

const (
	SyncStatusSuccess = "success"
	SyncStatusFailure = "failure"
	SyncStatusSkipped = "skipped"
)
