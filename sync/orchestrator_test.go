package sync

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	stdsync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"pipet/model/model"
)

// fakeStore keeps sync state in memory and records every page commit,
// enforcing the same previous-cursor guard as the real store.
type fakeStore struct {
	mu         stdsync.Mutex
	cursors    map[string]string
	backfilled map[string]bool
	commits    []model.PageCommit
	statements int

	forceConflict bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		cursors:    make(map[string]string),
		backfilled: make(map[string]bool),
	}
}

func (f *fakeStore) CommitPage(account *model.Account, commit *model.PageCommit) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.forceConflict {
		return http.StatusConflict
	}
	if f.cursors[commit.Resource] != commit.PrevCursor {
		return http.StatusConflict
	}

	f.cursors[commit.Resource] = commit.Cursor
	if commit.MarkBackfilled {
		f.backfilled[commit.Resource] = true
	}
	f.statements += len(commit.Statements)
	f.commits = append(f.commits, *commit)

	account.SetCursor(commit.Resource, commit.Cursor)
	if commit.MarkBackfilled {
		account.SetBackfilled(commit.Resource, true)
	}

	return http.StatusAccepted
}

func (f *fakeStore) GetAccount(id uint64) (*model.Account, int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	account := &model.Account{ID: id}
	for resource, cursor := range f.cursors {
		account.SetCursor(resource, cursor)
	}
	for resource, done := range f.backfilled {
		account.SetBackfilled(resource, done)
	}
	return account, http.StatusFound
}

func (f *fakeStore) commitsFor(resource string) []model.PageCommit {
	f.mu.Lock()
	defer f.mu.Unlock()

	var commits []model.PageCommit
	for i := range f.commits {
		if f.commits[i].Resource == resource {
			commits = append(commits, f.commits[i])
		}
	}
	return commits
}

func (f *fakeStore) CreateAccount(account *model.Account) int { return http.StatusNotImplemented }
func (f *fakeStore) GetAccountByCredentials(provider, username, apiKey string) (*model.Account, int) {
	return nil, http.StatusNotImplemented
}
func (f *fakeStore) GetAccountsByProvider(provider string) ([]model.Account, int) {
	return nil, http.StatusNotImplemented
}
func (f *fakeStore) DeleteAccount(id uint64) int { return http.StatusNotImplemented }
func (f *fakeStore) ResetSyncState(id uint64) int { return http.StatusNotImplemented }
func (f *fakeStore) OverrideCursor(id uint64, resource, cursor string) int {
	return http.StatusNotImplemented
}
func (f *fakeStore) ExecuteStatements(s []model.Statement) int { return http.StatusNotImplemented }
func (f *fakeStore) ProvisionSchema(schema string, d []string) int { return http.StatusNotImplemented }
func (f *fakeStore) DeleteAccountData(id uint64, schema string, tables []string) int {
	return http.StatusNotImplemented
}

func forwardTimeProvider(serverURL string, pageLimit int) *Provider {
	return &Provider{
		Name:      "test",
		Schema:    "test",
		PageLimit: pageLimit,
		BaseURL: func(account *model.Account) string {
			return serverURL
		},
		Authorize: func(account *model.Account, req *http.Request) {},
		Descriptors: []*Descriptor{
			{
				Name:     "tickets",
				Schema:   "test",
				IDField:  "id",
				IDType:   FieldBigint,
				Endpoint: "/tickets.json?start_time=%s",
				ListKey:  "tickets",
				Style:    PaginateForwardTime,
			},
		},
	}
}

func newTestOrchestrator(fs *fakeStore, provider *Provider) *Orchestrator {
	o := NewOrchestrator(fs, provider, NewClient(provider))
	o.sleep = func(time.Duration) {}
	return o
}

func forwardPageBody(firstID, n int, endTime int64) string {
	records := make([]map[string]interface{}, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, map[string]interface{}{"id": firstID + i})
	}
	body, _ := json.Marshal(map[string]interface{}{
		"tickets":  records,
		"end_time": endTime,
		"count":    n,
	})
	return string(body)
}

func TestSyncAccountBackfillsForwardTimeResource(t *testing.T) {
	// Two full pages and a 7-record tail, 207 records in total.
	pages := map[string]string{
		"0":   forwardPageBody(1, 100, 100),
		"100": forwardPageBody(101, 100, 200),
		"200": forwardPageBody(201, 7, 207),
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, pages[r.URL.Query().Get("start_time")])
	}))
	defer server.Close()

	fs := newFakeStore()
	o := newTestOrchestrator(fs, forwardTimeProvider(server.URL, 100))

	statuses, hasFailure := o.SyncAccount(&model.Account{ID: 1})
	assert.False(t, hasFailure)
	assert.Len(t, statuses, 1)
	assert.Equal(t, model.SyncStatusSuccess, statuses[0].Status)
	assert.Equal(t, 3, statuses[0].Pages)
	assert.Equal(t, 207, statuses[0].Records)

	commits := fs.commitsFor("tickets")
	assert.Len(t, commits, 3)
	assert.Equal(t, "", commits[0].PrevCursor)
	assert.Equal(t, "100", commits[0].Cursor)
	assert.Equal(t, "100", commits[1].PrevCursor)
	assert.Equal(t, "200", commits[1].Cursor)
	assert.False(t, commits[0].MarkBackfilled)
	assert.False(t, commits[1].MarkBackfilled)

	// The final partial page flips the resource to backfilled in the
	// same commit as its rows.
	assert.Equal(t, "207", commits[2].Cursor)
	assert.True(t, commits[2].MarkBackfilled)
	assert.True(t, fs.backfilled["tickets"])
	assert.Equal(t, 207, fs.statements)
}

func TestSyncAccountEmptyPollLeavesCursorUntouched(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "207", r.URL.Query().Get("start_time"))
		fmt.Fprint(w, `{"tickets": [], "count": 0}`)
	}))
	defer server.Close()

	fs := newFakeStore()
	fs.cursors["tickets"] = "207"
	fs.backfilled["tickets"] = true
	account, _ := fs.GetAccount(1)

	o := newTestOrchestrator(fs, forwardTimeProvider(server.URL, 100))

	statuses, hasFailure := o.SyncAccount(account)
	assert.False(t, hasFailure)
	assert.Equal(t, model.SyncStatusSuccess, statuses[0].Status)
	assert.Equal(t, 0, statuses[0].Pages)
	assert.Empty(t, fs.commits)
	assert.Equal(t, "207", fs.cursors["tickets"])
}

func TestSyncAccountEmptyFirstPageStillMarksBackfilled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"tickets": [], "count": 0}`)
	}))
	defer server.Close()

	fs := newFakeStore()
	o := newTestOrchestrator(fs, forwardTimeProvider(server.URL, 100))

	_, hasFailure := o.SyncAccount(&model.Account{ID: 1})
	assert.False(t, hasFailure)
	assert.True(t, fs.backfilled["tickets"])
	assert.Equal(t, "", fs.cursors["tickets"])
}

func TestSyncAccountRetriesThrottledFetch(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, forwardPageBody(1, 7, 50))
	}))
	defer server.Close()

	fs := newFakeStore()
	provider := forwardTimeProvider(server.URL, 100)
	o := NewOrchestrator(fs, provider, NewClient(provider))

	var slept []time.Duration
	o.sleep = func(d time.Duration) { slept = append(slept, d) }

	statuses, hasFailure := o.SyncAccount(&model.Account{ID: 1})
	assert.False(t, hasFailure)
	assert.Equal(t, model.SyncStatusSuccess, statuses[0].Status)
	assert.Equal(t, []time.Duration{fetchBackoffBase}, slept)
	assert.Equal(t, "50", fs.cursors["tickets"])
}

func TestSyncAccountHaltsAfterRetriesExhausted(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	fs := newFakeStore()
	o := newTestOrchestrator(fs, forwardTimeProvider(server.URL, 100))

	statuses, hasFailure := o.SyncAccount(&model.Account{ID: 1})
	assert.True(t, hasFailure)
	assert.Equal(t, model.SyncStatusFailure, statuses[0].Status)
	assert.Equal(t, fetchRetryLimit, calls)
	// A failed page never advances the cursor.
	assert.Empty(t, fs.commits)
}

func TestSyncAccountAbortsOnCursorConflict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, forwardPageBody(1, 7, 50))
	}))
	defer server.Close()

	fs := newFakeStore()
	fs.forceConflict = true
	o := newTestOrchestrator(fs, forwardTimeProvider(server.URL, 100))

	statuses, hasFailure := o.SyncAccount(&model.Account{ID: 1})
	assert.True(t, hasFailure)
	assert.Equal(t, model.SyncStatusFailure, statuses[0].Status)
	assert.Equal(t, model.ErrCursorConflict.Error(), statuses[0].Message)
}

func eventFeedProvider(serverURL string) *Provider {
	charges := &Descriptor{
		Name:       "charges",
		Schema:     "test",
		IDField:    "id",
		IDType:     FieldText,
		Fields:     []Field{{Name: "amount", Type: FieldBigint}},
		Endpoint:   "/v1/charges",
		Style:      PaginateReverseID,
		ObjectType: "charge",
	}

	return &Provider{
		Name:      "test",
		Schema:    "test",
		PageLimit: 100,
		BaseURL: func(account *model.Account) string {
			return serverURL
		},
		Authorize:   func(account *model.Account, req *http.Request) {},
		Descriptors: []*Descriptor{charges},
		Events: &EventFeed{
			Endpoint: "/v1/events",
			Resource: "events",
			Route: func(objectType string) *Descriptor {
				if objectType == "charge" {
					return charges
				}
				return nil
			},
		},
	}
}

func TestSyncAccountAnchorsAndReplaysEventFeed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/events":
			if r.URL.Query().Get("limit") == "1" {
				// Anchor capture before backfill starts.
				fmt.Fprint(w, `{"data": [{"id": "evt_5"}], "has_more": true}`)
				return
			}
			assert.Equal(t, "evt_5", r.URL.Query().Get("ending_before"))
			fmt.Fprint(w, `{
				"data": [
					{"id": "evt_7", "data": {"object": {"object": "charge", "id": "ch_3", "amount": 300}}},
					{"id": "evt_6", "data": {"object": {"object": "charge", "id": "ch_2", "amount": 250}}}
				],
				"has_more": false
			}`)
		case "/v1/charges":
			assert.Equal(t, "", r.URL.Query().Get("starting_after"))
			fmt.Fprint(w, `{
				"data": [{"id": "ch_2", "amount": 200}, {"id": "ch_1", "amount": 100}],
				"has_more": false
			}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	fs := newFakeStore()
	o := newTestOrchestrator(fs, eventFeedProvider(server.URL))

	statuses, hasFailure := o.SyncAccount(&model.Account{ID: 1})
	assert.False(t, hasFailure)
	assert.Len(t, statuses, 2)

	// Anchor first, then the backfill page, then the feed replay.
	eventCommits := fs.commitsFor("events")
	assert.Len(t, eventCommits, 2)
	assert.Equal(t, "evt_5", eventCommits[0].Cursor)
	assert.Empty(t, eventCommits[0].Statements)
	assert.Equal(t, "evt_5", eventCommits[1].PrevCursor)
	assert.Equal(t, "evt_7", eventCommits[1].Cursor)
	assert.Len(t, eventCommits[1].Statements, 2)

	chargeCommits := fs.commitsFor("charges")
	assert.Len(t, chargeCommits, 1)
	assert.Equal(t, "ch_1", chargeCommits[0].Cursor)
	assert.True(t, chargeCommits[0].MarkBackfilled)
}

func TestSyncAccountSkipsFeedReplayUntilBackfilled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/events" {
			fmt.Fprint(w, `{"data": [{"id": "evt_5"}], "has_more": true}`)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	fs := newFakeStore()
	o := newTestOrchestrator(fs, eventFeedProvider(server.URL))

	statuses, hasFailure := o.SyncAccount(&model.Account{ID: 1})
	assert.True(t, hasFailure)

	byResource := make(map[string]model.SyncStatus)
	for i := range statuses {
		byResource[statuses[i].Resource] = statuses[i]
	}
	assert.Equal(t, model.SyncStatusFailure, byResource["charges"].Status)
	assert.Equal(t, model.SyncStatusSkipped, byResource["events"].Status)
}

func TestSyncAccountHaltsBackfillWhenAnchorUnavailable(t *testing.T) {
	var chargeCalls, eventCalls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/events":
			eventCalls++
			w.WriteHeader(http.StatusInternalServerError)
		case "/v1/charges":
			chargeCalls++
			fmt.Fprint(w, `{"data": [{"id": "ch_1", "amount": 100}], "has_more": false}`)
		}
	}))
	defer server.Close()

	fs := newFakeStore()
	o := newTestOrchestrator(fs, eventFeedProvider(server.URL))

	statuses, hasFailure := o.SyncAccount(&model.Account{ID: 1})
	assert.True(t, hasFailure)

	// The anchor fetch is retried with the same bounded backoff as any
	// page fetch.
	assert.Equal(t, fetchRetryLimit, eventCalls)

	// Without the anchor the backfill never starts. Backfilling anyway
	// would lose every change made while the walk runs, since the later
	// feed replay only reaches back to a post-backfill anchor.
	assert.Equal(t, 0, chargeCalls)
	assert.Empty(t, fs.commits)

	byResource := make(map[string]model.SyncStatus)
	for i := range statuses {
		byResource[statuses[i].Resource] = statuses[i]
	}
	assert.Equal(t, model.SyncStatusFailure, byResource["charges"].Status)
	assert.Equal(t, "event feed anchor unavailable", byResource["charges"].Message)
	assert.Equal(t, model.SyncStatusSkipped, byResource["events"].Status)
}

func TestSyncAccountSkipsBackfilledReverseResources(t *testing.T) {
	var chargeCalls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/charges" {
			chargeCalls++
		}
		fmt.Fprint(w, `{"data": [], "has_more": false}`)
	}))
	defer server.Close()

	fs := newFakeStore()
	fs.cursors["charges"] = "ch_1"
	fs.backfilled["charges"] = true
	fs.cursors["events"] = "evt_5"
	account, _ := fs.GetAccount(1)

	o := newTestOrchestrator(fs, eventFeedProvider(server.URL))

	_, hasFailure := o.SyncAccount(account)
	assert.False(t, hasFailure)
	// Incremental changes come from the feed, the listing is not
	// re-walked.
	assert.Equal(t, 0, chargeCalls)
	assert.Equal(t, "evt_5", fs.cursors["events"])
}
