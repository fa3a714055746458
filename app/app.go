package main

import (
	"flag"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	C "pipet/config"
	H "pipet/handler"
)

// ./app --env=development --api_http_port=8080 --db_host=localhost --db_port=5432 --db_user=pipet --db_name=pipet --db_pass=pipet --redis_host=localhost --queue_redis_host=localhost
func main() {
	env := flag.String("env", "development", "")
	port := flag.Int("api_http_port", 8080, "")

	dbHost := flag.String("db_host", "localhost", "")
	dbPort := flag.Int("db_port", 5432, "")
	dbUser := flag.String("db_user", "pipet", "")
	dbName := flag.String("db_name", "pipet", "")
	dbPass := flag.String("db_pass", "pipet", "")

	redisHost := flag.String("redis_host", "localhost", "")
	redisPort := flag.Int("redis_port", 6379, "")

	queueRedisHost := flag.String("queue_redis_host", "localhost", "")
	queueRedisPort := flag.Int("queue_redis_port", 6379, "")

	flag.Parse()

	config := &C.Configuration{
		AppName: "app_server",
		Env:     *env,
		Port:    *port,
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

	if !C.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	H.InitRoutes(r)
	r.Run(":" + strconv.Itoa(C.GetConfig().Port))
}
