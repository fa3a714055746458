package sync

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"pipet/model/model"
	U "pipet/util"
)

// FetchFailedError - non-2xx, non-429 provider response. Retryable
// with backoff up to the orchestrator's attempt limit.
type FetchFailedError struct {
	Status int
}

func (e *FetchFailedError) Error() string {
	return fmt.Sprintf("fetch failed with status %d", e.Status)
}

// Page is one fetched slice of a resource's listing: the raw records,
// any page-level embedded dependent lists, and the pagination outcome.
type Page struct {
	Records    []map[string]interface{}
	Embedded   map[string][]map[string]interface{}
	NextCursor string
	HasMore    bool
}

// Client executes authenticated paginated GETs against one provider.
// It never mutates cursor state.
type Client struct {
	provider  *Provider
	netClient *http.Client
}

func NewClient(provider *Provider) *Client {
	return &Client{
		provider:  provider,
		netClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

// NewClientWithTransport keeps the transport injectable for tests.
func NewClientWithTransport(provider *Provider, netClient *http.Client) *Client {
	return &Client{provider: provider, netClient: netClient}
}

// FetchPage fetches the next page of a resource from the given cursor.
func (c *Client) FetchPage(account *model.Account, d *Descriptor, cursor string) (*Page, error) {
	switch d.Style {
	case PaginateForwardTime:
		return c.fetchForwardPage(account, d, cursor)
	case PaginateReverseID:
		return c.fetchReversePage(account, d, cursor)
	}

	return nil, fmt.Errorf("resource %s has no fetch endpoint", d.Name)
}

func (c *Client) fetchForwardPage(account *model.Account, d *Descriptor, cursor string) (*Page, error) {
	if cursor == "" {
		cursor = "0"
	}

	body, err := c.doGet(account, fmt.Sprintf(d.Endpoint, cursor))
	if err != nil {
		return nil, err
	}

	page := &Page{
		Records:  unwrapList(body[d.ListKey]),
		Embedded: make(map[string][]map[string]interface{}),
	}
	for i := range d.Embedded {
		if !d.Embedded[i].FromRecord {
			page.Embedded[d.Embedded[i].Key] = unwrapList(body[d.Embedded[i].Key])
		}
	}

	if len(page.Records) == 0 {
		return page, nil
	}

	endTime, err := U.GetValueAsInt64(body["end_time"])
	if err != nil {
		return nil, errors.Wrap(err, "missing end_time on incremental page")
	}
	page.NextCursor = strconv.FormatInt(endTime, 10)

	count, err := U.GetValueAsInt64(body["count"])
	if err != nil {
		count = int64(len(page.Records))
	}
	page.HasMore = int(count) == c.provider.PageLimit

	return page, nil
}

func (c *Client) fetchReversePage(account *model.Account, d *Descriptor, cursor string) (*Page, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(c.provider.PageLimit))
	if cursor != "" {
		params.Set("starting_after", cursor)
	}

	body, err := c.doGet(account, d.Endpoint+"?"+params.Encode())
	if err != nil {
		return nil, err
	}

	page := &Page{
		Records:  unwrapList(body["data"]),
		Embedded: make(map[string][]map[string]interface{}),
	}

	if len(page.Records) == 0 {
		return page, nil
	}

	// Listing is newest-first, the walk moves toward the oldest record.
	last := page.Records[len(page.Records)-1]
	page.NextCursor = U.GetValueAsString(last["id"])
	hasMore, err := U.GetValueAsBool(body["has_more"])
	if err != nil {
		return nil, errors.Wrap(err, "missing has_more on listing page")
	}
	page.HasMore = hasMore

	return page, nil
}

// FetchEvents walks the provider's change feed forward from the given
// anchor using ending_before. The next cursor is the newest event seen.
func (c *Client) FetchEvents(account *model.Account, cursor string) (*Page, error) {
	feed := c.provider.Events

	params := url.Values{}
	params.Set("limit", strconv.Itoa(c.provider.PageLimit))
	params.Set("ending_before", cursor)

	body, err := c.doGet(account, feed.Endpoint+"?"+params.Encode())
	if err != nil {
		return nil, err
	}

	page := &Page{Records: unwrapList(body["data"])}
	if len(page.Records) == 0 {
		return page, nil
	}

	page.NextCursor = U.GetValueAsString(page.Records[0]["id"])
	hasMore, err := U.GetValueAsBool(body["has_more"])
	if err != nil {
		return nil, errors.Wrap(err, "missing has_more on event page")
	}
	page.HasMore = hasMore

	return page, nil
}

// FetchNewestEventID returns the id of the provider's most recent
// event, empty when the feed is empty. Captured before backfill so
// polling starts from the backfill moment.
func (c *Client) FetchNewestEventID(account *model.Account) (string, error) {
	params := url.Values{}
	params.Set("limit", "1")

	body, err := c.doGet(account, c.provider.Events.Endpoint+"?"+params.Encode())
	if err != nil {
		return "", err
	}

	records := unwrapList(body["data"])
	if len(records) == 0 {
		return "", nil
	}

	return U.GetValueAsString(records[0]["id"]), nil
}

// FetchResource fetches a single object by path. Used by the webhook
// ingest path.
func (c *Client) FetchResource(account *model.Account, path string) (map[string]interface{}, error) {
	return c.doGet(account, path)
}

func (c *Client) doGet(account *model.Account, path string) (map[string]interface{}, error) {
	req, err := http.NewRequest(http.MethodGet, c.provider.BaseURL(account)+path, nil)
	if err != nil {
		return nil, err
	}

	for key, value := range c.provider.RequestHeaders {
		req.Header.Set(key, value)
	}
	c.provider.Authorize(account, req)

	resp, err := c.netClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "provider request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, model.ErrThrottled
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &FetchFailedError{Status: resp.StatusCode}
	}

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.Wrap(err, "failed to decode provider response")
	}

	return body, nil
}
