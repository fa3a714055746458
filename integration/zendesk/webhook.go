package zendesk

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"pipet/model/model"
	"pipet/sync"
)

// BuildTicketStatements re-fetches one ticket with its sideloaded
// users and groups plus its comment thread, and returns the upserts to
// mirror them. Driven by the provider's http target notification,
// which carries only the ticket id.
func BuildTicketStatements(client *sync.Client, account *model.Account, ticketID int64) ([]model.Statement, error) {
	logCtx := log.WithFields(log.Fields{"account_id": account.ID, "ticket_id": ticketID})

	body, err := client.FetchResource(account,
		fmt.Sprintf("/api/v2/tickets/%d.json?include=users,groups", ticketID))
	if err != nil {
		return nil, err
	}

	ticketRaw, ok := body["ticket"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("ticket %d missing from response", ticketID)
	}

	ticket, err := ticketsDescriptor.Parse(ticketRaw, account.ID)
	if err != nil {
		return nil, err
	}

	// The ticket's row lands first so its dependents never reference a
	// ticket the mirror has not seen.
	statements := sync.BuildStatements(ticket)

	for _, raw := range unwrapBody(body, "users") {
		record, err := usersDescriptor.Parse(raw, account.ID)
		if err != nil {
			logCtx.WithError(err).Warn("Skipping unparseable sideloaded user.")
			continue
		}
		statements = append(statements, sync.BuildStatements(record)...)
	}

	for _, raw := range unwrapBody(body, "groups") {
		record, err := groupsDescriptor.Parse(raw, account.ID)
		if err != nil {
			logCtx.WithError(err).Warn("Skipping unparseable sideloaded group.")
			continue
		}
		statements = append(statements, sync.BuildStatements(record)...)
	}

	commentsBody, err := client.FetchResource(account,
		fmt.Sprintf("/api/v2/tickets/%d/comments.json", ticketID))
	if err != nil {
		return nil, err
	}

	for _, raw := range unwrapBody(commentsBody, "comments") {
		// Comments carry no ticket reference of their own.
		raw["ticket_id"] = ticketID

		record, err := ticketCommentsDescriptor.Parse(raw, account.ID)
		if err != nil {
			logCtx.WithError(err).Warn("Skipping unparseable ticket comment.")
			continue
		}
		statements = append(statements, sync.BuildStatements(record)...)
	}

	return statements, nil
}

func unwrapBody(body map[string]interface{}, key string) []map[string]interface{} {
	value, ok := body[key].([]interface{})
	if !ok {
		return nil
	}

	records := make([]map[string]interface{}, 0, len(value))
	for _, item := range value {
		if record, ok := item.(map[string]interface{}); ok {
			records = append(records, record)
		}
	}
	return records
}
