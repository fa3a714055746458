package main

// Enqueues a sync job for every account of the given providers. Meant
// to run on a cron so mirrored data stays current between webhooks.
// go run run_sync_trigger.go --env=development --db_host=localhost --queue_redis_host=localhost

import (
	"flag"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	C "pipet/config"
	M "pipet/model/model"
	"pipet/model/store"
	"pipet/task/account_sync"
)

func main() {
	env := flag.String("env", "development", "")

	dbHost := flag.String("db_host", "localhost", "")
	dbPort := flag.Int("db_port", 5432, "")
	dbUser := flag.String("db_user", "pipet", "")
	dbName := flag.String("db_name", "pipet", "")
	dbPass := flag.String("db_pass", "pipet", "")

	queueRedisHost := flag.String("queue_redis_host", "localhost", "")
	queueRedisPort := flag.Int("queue_redis_port", 6379, "")

	providers := flag.String("providers",
		strings.Join([]string{M.ProviderZendesk, M.ProviderStripe}, ","), "")

	flag.Parse()

	config := &C.Configuration{
		AppName: "sync_trigger",
		Env:     *env,
		DBInfo: C.DBConf{
			Host:     *dbHost,
			Port:     *dbPort,
			User:     *dbUser,
			Name:     *dbName,
			Password: *dbPass,
		},
		QueueRedisHost: *queueRedisHost,
		QueueRedisPort: *queueRedisPort,
	}

	C.InitConf(config)

	if err := C.InitDB(config.DBInfo); err != nil {
		log.WithError(err).Fatal("Failed to initialize db.")
		return
	}
	if err := C.InitQueue(config.QueueRedisHost, config.QueueRedisPort); err != nil {
		log.WithError(err).Fatal("Failed to initialize queue.")
		return
	}

	for _, provider := range strings.Split(*providers, ",") {
		logCtx := log.WithFields(log.Fields{"provider": provider})

		accounts, errCode := store.GetStore().GetAccountsByProvider(provider)
		if errCode == http.StatusNotFound {
			logCtx.Info("No accounts to sync.")
			continue
		}
		if errCode != http.StatusFound {
			logCtx.WithField("err_code", errCode).Error("Failed to get accounts.")
			continue
		}

		for i := range accounts {
			taskID, err := account_sync.EnqueueSyncJob(accounts[i].ID, "", "")
			if err != nil {
				logCtx.WithField("account_id", accounts[i].ID).WithError(err).
					Error("Failed to enqueue sync job.")
				continue
			}

			logCtx.WithFields(log.Fields{"account_id": accounts[i].ID,
				"task_id": taskID}).Info("Enqueued sync job.")
		}
	}
}
