package sync

import (
	"errors"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"pipet/model/model"
	"pipet/model/store"
	U "pipet/util"
)

const (
	fetchRetryLimit  = 5
	fetchBackoffBase = time.Second
)

// Orchestrator drives the per-resource sync state machine for one
// provider: NotStarted -> Backfilling -> Backfilled/Polling. Every page
// commits its writes and its cursor advance in one transaction, so a
// crash or cancellation between pages always leaves a resumable
// position.
type Orchestrator struct {
	store    store.Model
	provider *Provider
	client   *Client
	sleep    func(time.Duration)
}

func NewOrchestrator(st store.Model, provider *Provider, client *Client) *Orchestrator {
	return &Orchestrator{
		store:    st,
		provider: provider,
		client:   client,
		sleep:    time.Sleep,
	}
}

// SyncAccount runs one sync pass over every top-level resource of the
// account's provider. Resources run as parallel tasks - they write to
// disjoint tables and hold independent cursors. The caller guarantees
// at most one in-flight SyncAccount per account.
func (o *Orchestrator) SyncAccount(account *model.Account) ([]model.SyncStatus, bool) {
	logCtx := log.WithFields(log.Fields{"account_id": account.ID,
		"provider": o.provider.Name})

	// Event-feed providers anchor the poll position before the first
	// backfill page, so polling later replays exactly the changes made
	// while backfill was running.
	anchorFailed := false
	if o.provider.Events != nil && account.Cursor(o.provider.Events.Resource) == "" {
		anchorFailed = !o.captureEventAnchor(account)
	}

	statuses := make([]model.SyncStatus, 0, len(o.provider.Descriptors)+1)
	hasFailure := false

	statusCh := make(chan model.SyncStatus)
	active := 0
	for _, d := range o.provider.Descriptors {
		if d.Style == PaginateNone {
			continue
		}
		if d.Style == PaginateReverseID && account.IsBackfilled(d.Name) {
			// Incremental changes arrive via the event feed.
			continue
		}
		if d.Style == PaginateReverseID && anchorFailed {
			// Backfilling without the anchor would permanently miss
			// every change made while the walk runs.
			statuses = append(statuses, model.SyncStatus{
				AccountID: account.ID,
				Resource:  d.Name,
				Status:    model.SyncStatusFailure,
				Message:   "event feed anchor unavailable",
			})
			hasFailure = true
			continue
		}

		active++
		// Each task gets its own account copy. Cursor maps are
		// replaced, never mutated in place, so copies stay race free.
		taskAccount := *account
		descriptor := d
		go func() {
			statusCh <- o.syncResource(&taskAccount, descriptor)
		}()
	}
	for i := 0; i < active; i++ {
		status := <-statusCh
		if status.Status == model.SyncStatusFailure {
			hasFailure = true
		}
		statuses = append(statuses, status)
	}

	if o.provider.Events != nil {
		// The parallel tasks advanced state on their own copies -
		// reload before deciding whether the feed replay can start.
		fresh, errCode := o.store.GetAccount(account.ID)
		if errCode != http.StatusFound {
			logCtx.Error("Failed to reload account after resource sync.")
			return statuses, true
		}

		status := o.pollEvents(fresh)
		if status.Status == model.SyncStatusFailure {
			hasFailure = true
		}
		statuses = append(statuses, status)
	}

	return statuses, hasFailure
}

// syncResource runs one resource's pagination loop until the provider
// reports no more pages or a fetch error halts it. Halting one
// resource never aborts the account's other resources.
func (o *Orchestrator) syncResource(account *model.Account, d *Descriptor) model.SyncStatus {
	logCtx := log.WithFields(log.Fields{"account_id": account.ID,
		"provider": o.provider.Name, "resource": d.Name})

	status := model.SyncStatus{
		AccountID: account.ID,
		Resource:  d.Name,
		Status:    model.SyncStatusSuccess,
	}

	backfilled := account.IsBackfilled(d.Name)

	for {
		cursor := account.Cursor(d.Name)

		page, err := o.fetchWithRetry(logCtx, func() (*Page, error) {
			return o.client.FetchPage(account, d, cursor)
		})
		if err != nil {
			// The failing page's cursor is never advanced - the next
			// scheduled run resumes from the last good position.
			logCtx.WithError(err).Error("Halting resource sync after fetch failure.")
			status.Status = model.SyncStatusFailure
			status.Message = err.Error()
			return status
		}

		if len(page.Records) == 0 {
			// Exhausted. The first exhaustion flips the resource to
			// backfilled; an empty poll page never regresses the cursor.
			if !backfilled {
				errCode := o.store.CommitPage(account, &model.PageCommit{
					Resource:       d.Name,
					Cursor:         cursor,
					PrevCursor:     cursor,
					MarkBackfilled: true,
				})
				if errCode != http.StatusAccepted {
					status.Status = model.SyncStatusFailure
					status.Message = "failed to mark resource backfilled"
				}
			}
			return status
		}

		statements, records := o.buildPageStatements(account, d, page)

		errCode := o.store.CommitPage(account, &model.PageCommit{
			Resource:       d.Name,
			Statements:     statements,
			Cursor:         page.NextCursor,
			PrevCursor:     cursor,
			MarkBackfilled: !backfilled && !page.HasMore,
		})
		if errCode == http.StatusConflict {
			logCtx.Error("Aborting resource sync on concurrent cursor advance.")
			status.Status = model.SyncStatusFailure
			status.Message = model.ErrCursorConflict.Error()
			return status
		}
		if errCode != http.StatusAccepted {
			status.Status = model.SyncStatusFailure
			status.Message = "failed to commit page"
			return status
		}

		status.Pages++
		status.Records += records

		if !page.HasMore {
			return status
		}
	}
}

// pollEvents replays the provider's change feed after backfill,
// routing each pushed object to its descriptor by type discriminator.
func (o *Orchestrator) pollEvents(account *model.Account) model.SyncStatus {
	feed := o.provider.Events
	logCtx := log.WithFields(log.Fields{"account_id": account.ID,
		"provider": o.provider.Name, "resource": feed.Resource})

	status := model.SyncStatus{
		AccountID: account.ID,
		Resource:  feed.Resource,
		Status:    model.SyncStatusSuccess,
	}

	for _, d := range o.provider.Descriptors {
		if d.Style == PaginateReverseID && !account.IsBackfilled(d.Name) {
			// Feed replay would race the resource's own backfill walk.
			status.Status = model.SyncStatusSkipped
			status.Message = "backfill incomplete"
			return status
		}
	}

	if account.Cursor(feed.Resource) == "" {
		if !o.captureEventAnchor(account) {
			status.Status = model.SyncStatusFailure
			status.Message = "event feed anchor unavailable"
			return status
		}
		if account.Cursor(feed.Resource) == "" {
			status.Status = model.SyncStatusSkipped
			status.Message = "event feed empty"
			return status
		}
	}

	for {
		cursor := account.Cursor(feed.Resource)

		page, err := o.fetchWithRetry(logCtx, func() (*Page, error) {
			return o.client.FetchEvents(account, cursor)
		})
		if err != nil {
			logCtx.WithError(err).Error("Halting event replay after fetch failure.")
			status.Status = model.SyncStatusFailure
			status.Message = err.Error()
			return status
		}

		if len(page.Records) == 0 {
			return status
		}

		statements := make([]model.Statement, 0, len(page.Records))
		records := 0
		for _, eventRaw := range page.Records {
			object := embeddedObject(eventRaw)
			if object == nil {
				continue
			}

			d := feed.Route(U.GetValueAsString(object["object"]))
			if d == nil {
				continue
			}

			record, err := d.Parse(object, account.ID)
			if err != nil {
				logCtx.WithError(err).Warn("Skipping unparseable event object.")
				continue
			}

			statements = append(statements, BuildStatements(record)...)
			records++
		}

		errCode := o.store.CommitPage(account, &model.PageCommit{
			Resource:   feed.Resource,
			Statements: statements,
			Cursor:     page.NextCursor,
			PrevCursor: cursor,
		})
		if errCode == http.StatusConflict {
			logCtx.Error("Aborting event replay on concurrent cursor advance.")
			status.Status = model.SyncStatusFailure
			status.Message = model.ErrCursorConflict.Error()
			return status
		}
		if errCode != http.StatusAccepted {
			status.Status = model.SyncStatusFailure
			status.Message = "failed to commit event page"
			return status
		}

		status.Pages++
		status.Records += records

		if !page.HasMore {
			return status
		}
	}
}

func (o *Orchestrator) captureEventAnchor(account *model.Account) bool {
	logCtx := log.WithFields(log.Fields{"account_id": account.ID,
		"provider": o.provider.Name})

	var newestID string
	err := o.retryFetch(logCtx, func() error {
		id, err := o.client.FetchNewestEventID(account)
		if err != nil {
			return err
		}
		newestID = id
		return nil
	})
	if err != nil {
		logCtx.WithError(err).Error("Failed to capture event feed anchor.")
		return false
	}
	if newestID == "" {
		return true
	}

	errCode := o.store.CommitPage(account, &model.PageCommit{
		Resource:   o.provider.Events.Resource,
		Cursor:     newestID,
		PrevCursor: "",
	})
	if errCode != http.StatusAccepted {
		logCtx.Error("Failed to persist event feed anchor.")
		return false
	}

	return true
}

// buildPageStatements parses a page's records plus embedded dependents
// and returns their upsert statements. Parent records come first so a
// dependent's foreign-key-shaped column never lands before its parent
// row. A record that fails to parse is skipped and logged, never
// aborting the page.
func (o *Orchestrator) buildPageStatements(account *model.Account, d *Descriptor, page *Page) ([]model.Statement, int) {
	logCtx := log.WithFields(log.Fields{"account_id": account.ID, "resource": d.Name})

	statements := make([]model.Statement, 0, len(page.Records))
	records := 0

	for _, raw := range page.Records {
		record, err := d.Parse(raw, account.ID)
		if err != nil {
			logCtx.WithError(err).Warn("Skipping unparseable record.")
			continue
		}

		statements = append(statements, BuildStatements(record)...)
		records++
	}

	for i := range d.Embedded {
		embedded := &d.Embedded[i]

		var lists [][]map[string]interface{}
		if embedded.FromRecord {
			for _, raw := range page.Records {
				lists = append(lists, unwrapList(raw[embedded.Key]))
			}
		} else {
			lists = append(lists, page.Embedded[embedded.Key])
		}

		for _, list := range lists {
			for _, raw := range list {
				record, err := embedded.Descriptor.Parse(raw, account.ID)
				if err != nil {
					logCtx.WithField("dependent", embedded.Descriptor.Name).
						WithError(err).Warn("Skipping unparseable dependent record.")
					continue
				}

				statements = append(statements, BuildStatements(record)...)
				records++
			}
		}
	}

	return statements, records
}

func (o *Orchestrator) fetchWithRetry(logCtx *log.Entry, fetch func() (*Page, error)) (*Page, error) {
	var page *Page

	err := o.retryFetch(logCtx, func() error {
		fetched, err := fetch()
		if err != nil {
			return err
		}
		page = fetched
		return nil
	})
	if err != nil {
		return nil, err
	}

	return page, nil
}

func (o *Orchestrator) retryFetch(logCtx *log.Entry, attempt func() error) error {
	var lastErr error

	for try := 0; try < fetchRetryLimit; try++ {
		if try > 0 {
			o.sleep(fetchBackoffBase << uint(try-1))
		}

		err := attempt()
		if err == nil {
			return nil
		}
		lastErr = err

		if errors.Is(err, model.ErrThrottled) {
			logCtx.WithField("attempt", try+1).Warn("Provider throttled, backing off.")
			continue
		}

		logCtx.WithField("attempt", try+1).WithError(err).Warn("Page fetch failed, retrying.")
	}

	return lastErr
}

func embeddedObject(eventRaw map[string]interface{}) map[string]interface{} {
	data, ok := eventRaw["data"].(map[string]interface{})
	if !ok {
		return nil
	}

	object, ok := data["object"].(map[string]interface{})
	if !ok {
		return nil
	}

	return object
}
