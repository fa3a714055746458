package main

// Example usage on Terminal.
// go run run_db_create.go --env=development --db_host=localhost --db_port=5432 --db_user=pipet --db_name=pipet --db_pass=pipet

import (
	"flag"

	log "github.com/sirupsen/logrus"

	C "pipet/config"
	M "pipet/model/model"
)

func main() {
	env := flag.String("env", "development", "")

	dbHost := flag.String("db_host", "localhost", "")
	dbPort := flag.Int("db_port", 5432, "")
	dbUser := flag.String("db_user", "pipet", "")
	dbName := flag.String("db_name", "pipet", "")
	dbPass := flag.String("db_pass", "pipet", "")

	flag.Parse()

	config := &C.Configuration{
		AppName: "db_create",
		Env:     *env,
		DBInfo: C.DBConf{
			Host:     *dbHost,
			Port:     *dbPort,
			User:     *dbUser,
			Name:     *dbName,
			Password: *dbPass,
		},
	}

	C.InitConf(config)

	if C.GetConfig().Env != C.DEVELOPMENT {
		log.Error("Not development environment. Aborting.")
		return
	}

	if err := C.InitDB(config.DBInfo); err != nil {
		log.Error("Failed to initialize db.")
		return
	}

	db := C.GetServices().Db
	defer db.Close()

	// Create accounts table.
	if err := db.CreateTable(&M.Account{}).Error; err != nil {
		log.WithFields(log.Fields{"err": err}).Error("accounts table creation failed.")
	} else {
		log.Info("Created accounts table.")
	}

	// One connection per provider per workspace.
	if err := db.Exec("CREATE UNIQUE INDEX workspace_provider_unique_idx ON accounts(workspace_id, provider);").Error; err != nil {
		log.WithFields(log.Fields{"err": err}).Error("accounts table workspace provider unique indexing failed.")
	} else {
		log.Info("accounts table workspace provider unique index created.")
	}

	// Webhook auth lookup path.
	if err := db.Exec("CREATE INDEX provider_api_key_idx ON accounts(provider, api_key);").Error; err != nil {
		log.WithFields(log.Fields{"err": err}).Error("accounts table provider api key indexing failed.")
	} else {
		log.Info("accounts table provider api key index created.")
	}
}
