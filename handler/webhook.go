package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	IntStripe "pipet/integration/stripe"
	IntZendesk "pipet/integration/zendesk"
	"pipet/model/model"
	"pipet/model/store"
	"pipet/sync"
)

// ZendeskWebhookHandler ingests the provider's http target
// notification. The payload carries only the changed ticket's id, the
// handler re-fetches the ticket with its dependents and mirrors them.
// Re-fetching makes replayed or duplicate deliveries converge on the
// same rows.
func ZendeskWebhookHandler(c *gin.Context) {
	username, password, ok := c.Request.BasicAuth()
	if !ok {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	account, errCode := store.GetStore().GetAccountByCredentials(
		model.ProviderZendesk, username, password)
	if errCode != http.StatusFound {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	var payload struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(c.Request.Body).Decode(&payload); err != nil || payload.ID == 0 {
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	logCtx := log.WithFields(log.Fields{"account_id": account.ID,
		"ticket_id": payload.ID})

	provider := IntZendesk.GetProvider()
	statements, err := IntZendesk.BuildTicketStatements(
		sync.NewClient(provider), account, payload.ID)
	if err != nil {
		logCtx.WithError(err).Error("Zendesk webhook failed to fetch ticket.")
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	if errCode := store.GetStore().ExecuteStatements(statements); errCode != http.StatusAccepted {
		logCtx.WithField("err_code", errCode).Error("Zendesk webhook failed to mirror ticket.")
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	c.Status(http.StatusNoContent)
}

// StripeWebhookHandler ingests pushed events. The event's embedded
// object is routed to its descriptor by the object type discriminator
// and upserted. Unmapped object types are acknowledged and dropped.
func StripeWebhookHandler(c *gin.Context) {
	username, _, ok := c.Request.BasicAuth()
	if !ok {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	account, errCode := store.GetStore().GetAccountByCredentials(
		model.ProviderStripe, username, username)
	if errCode != http.StatusFound {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	var event map[string]interface{}
	if err := json.NewDecoder(c.Request.Body).Decode(&event); err != nil {
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	logCtx := log.WithFields(log.Fields{"account_id": account.ID})

	data, ok := event["data"].(map[string]interface{})
	if !ok {
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}
	object, ok := data["object"].(map[string]interface{})
	if !ok {
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	objectType, _ := object["object"].(string)
	d := IntStripe.RouteObjectType(objectType)
	if d == nil {
		logCtx.WithField("object_type", objectType).Debug(
			"Dropping event for unmapped object type.")
		c.Status(http.StatusNoContent)
		return
	}

	record, err := d.Parse(object, account.ID)
	if err != nil {
		logCtx.WithField("object_type", objectType).WithError(err).Error(
			"Stripe webhook failed to parse event object.")
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	if errCode := store.GetStore().ExecuteStatements(sync.BuildStatements(record)); errCode != http.StatusAccepted {
		logCtx.WithField("err_code", errCode).Error("Stripe webhook failed to mirror event object.")
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	c.Status(http.StatusNoContent)
}
