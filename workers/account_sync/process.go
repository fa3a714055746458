package main

import (
	"flag"

	log "github.com/sirupsen/logrus"

	C "pipet/config"
	"pipet/task/account_sync"
)

const workerName = "account_sync_worker"

// ./process --env=development --db_host=localhost --queue_redis_host=localhost --worker_concurrency=5
func main() {
	env := flag.String("env", "development", "")

	dbHost := flag.String("db_host", "localhost", "")
	dbPort := flag.Int("db_port", 5432, "")
	dbUser := flag.String("db_user", "pipet", "")
	dbName := flag.String("db_name", "pipet", "")
	dbPass := flag.String("db_pass", "pipet", "")

	redisHost := flag.String("redis_host", "localhost", "")
	redisPort := flag.Int("redis_port", 6379, "")

	queueRedisHost := flag.String("queue_redis_host", "localhost", "")
	queueRedisPort := flag.Int("queue_redis_port", 6379, "")

	workerConcurrency := flag.Int("worker_concurrency", 5, "")

	flag.Parse()

	config := &C.Configuration{
		AppName: workerName,
		Env:     *env,
		DBInfo: C.DBConf{
			Host:     *dbHost,
			Port:     *dbPort,
			User:     *dbUser,
			Name:     *dbName,
			Password: *dbPass,
		},
		RedisHost:      *redisHost,
		RedisPort:      *redisPort,
		QueueRedisHost: *queueRedisHost,
		QueueRedisPort: *queueRedisPort,
	}

	C.InitConf(config)

	if err := C.InitDB(config.DBInfo); err != nil {
		log.WithError(err).Fatal("Failed to initialize db.")
		return
	}
	C.InitRedis(config.RedisHost, config.RedisPort)
	if err := C.InitQueue(config.QueueRedisHost, config.QueueRedisPort); err != nil {
		log.WithError(err).Fatal("Failed to initialize queue.")
		return
	}

	queueClient := C.GetServices().Queue
	err := queueClient.RegisterTask(account_sync.TaskSyncAccount, account_sync.SyncAccount)
	if err != nil {
		log.WithError(err).WithField("worker", workerName).
			Fatal("Failed to register tasks on queue client.")
	}

	worker := queueClient.NewCustomQueueWorker(workerName,
		*workerConcurrency, C.SyncJobsQueue)
	worker.Launch()
}
