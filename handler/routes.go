package handler

import (
	C "pipet/config"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

func InitRoutes(r *gin.Engine) {
	// CORS
	if C.IsDevelopment() {
		log.Info("Running in development.")
		config := cors.DefaultConfig()
		config.AllowOrigins = []string{"http://localhost:8080",
			"http://localhost:3000"}
		r.Use(cors.New(config))
	}

	r.POST("/accounts", CreateAccountHandler)
	r.GET("/accounts/:account_id", GetAccountHandler)
	r.DELETE("/accounts/:account_id", DeactivateAccountHandler)
	r.POST("/accounts/:account_id/reset", ResetAccountHandler)
	r.POST("/accounts/:account_id/sync", TriggerSyncHandler)

	r.POST("/hooks/zendesk", ZendeskWebhookHandler)
	r.POST("/hooks/stripe", StripeWebhookHandler)
}
