package config

import (
	"fmt"
	"time"

	"github.com/RichardKnop/machinery/v1"
	machineryConfig "github.com/RichardKnop/machinery/v1/config"
	"github.com/gomodule/redigo/redis"
	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/postgres"
	log "github.com/sirupsen/logrus"
)

const DEVELOPMENT = "development"

// SyncJobsQueue is the machinery queue carrying account sync jobs.
const SyncJobsQueue = "sync_jobs"

type DBConf struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type Configuration struct {
	AppName        string `json:"app_name"`
	Env            string `json:"env"`
	Port           int    `json:"port"`
	DBInfo         DBConf `json:"db"`
	RedisHost      string `json:"redis_host"`
	RedisPort      int    `json:"redis_port"`
	QueueRedisHost string `json:"queue_redis_host"`
	QueueRedisPort int    `json:"queue_redis_port"`
}

type Services struct {
	Db    *gorm.DB
	Redis *redis.Pool
	Queue *machinery.Server
}

var configuration *Configuration
var services = &Services{}

func initLogging() {
	// Log as JSON instead of the default ASCII formatter.
	log.SetFormatter(&log.JSONFormatter{})

	if IsDevelopment() {
		log.SetFormatter(&log.TextFormatter{})
		log.SetLevel(log.DebugLevel)
	}
}

// InitConf stores the flag-built configuration and sets up logging.
// Each binary builds its own Configuration from flags.
func InitConf(config *Configuration) {
	configuration = config
	initLogging()
}

// InitDB initializes the gorm postgres connection with pooling.
func InitDB(dbConf DBConf) error {
	db, err := gorm.Open("postgres", fmt.Sprintf(
		"host=%s port=%d user=%s dbname=%s password=%s sslmode=disable",
		dbConf.Host, dbConf.Port, dbConf.User, dbConf.Name, dbConf.Password))
	if err != nil {
		log.WithError(err).Error("Failed db initialization.")
		return err
	}

	db.DB().SetMaxIdleConns(10)
	db.DB().SetMaxOpenConns(50)
	db.LogMode(IsDevelopment())

	services.Db = db
	log.Info("Db service initialized.")
	return nil
}

// InitRedis initializes the redigo pool used for the per-account sync
// mutex.
func InitRedis(host string, port int) {
	addr := fmt.Sprintf("%s:%d", host, port)

	services.Redis = &redis.Pool{
		MaxIdle:     5,
		MaxActive:   20,
		IdleTimeout: 240 * time.Second,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", addr)
		},
	}
	log.Info("Redis service initialized.")
}

// InitQueue initializes the machinery server used to enqueue and
// consume account sync jobs.
func InitQueue(host string, port int) error {
	broker := fmt.Sprintf("redis://%s:%d", host, port)

	cnf := &machineryConfig.Config{
		Broker:        broker,
		DefaultQueue:  SyncJobsQueue,
		ResultBackend: broker,
	}

	server, err := machinery.NewServer(cnf)
	if err != nil {
		log.WithError(err).Error("Failed queue initialization.")
		return err
	}

	services.Queue = server
	log.Info("Queue service initialized.")
	return nil
}

func GetConfig() *Configuration {
	return configuration
}

func GetServices() *Services {
	return services
}

// SetServicesForTest allows tests to stub service handles without the
// full init path.
func SetServicesForTest(s *Services) {
	services = s
}

func IsDevelopment() bool {
	return configuration != nil && configuration.Env == DEVELOPMENT
}
