package postgres

import (
	"github.com/jinzhu/gorm"

	C "pipet/config"
)

// Postgres implements the store interface on the postgres datastore.
type Postgres struct{}

func getDB() *gorm.DB {
	return C.GetServices().Db
}
