package postgres

import (
	"fmt"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Schema and table names come from static descriptor definitions, the
// check guards against anything else reaching the interpolated DDL.
func isValidIdentifier(name string) bool {
	if name == "" {
		return false
	}

	for _, r := range name {
		if (r < 'a' || r > 'z') && r != '_' {
			return false
		}
	}

	return true
}

// ProvisionSchema creates the provider schema and the mirrored tables.
// One-time call on account activation, idempotent.
func (pg *Postgres) ProvisionSchema(schema string, ddl []string) int {
	logCtx := log.WithField("schema", schema)

	if !isValidIdentifier(schema) {
		logCtx.Error("Failed to provision schema. Invalid schema name.")
		return http.StatusBadRequest
	}

	db := getDB()
	err := db.Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)).Error
	if err != nil {
		logCtx.WithError(err).Error("Failed to create schema.")
		return http.StatusInternalServerError
	}

	for i := range ddl {
		if !strings.HasPrefix(ddl[i], "CREATE TABLE") {
			logCtx.Error("Failed to provision schema. Unexpected DDL statement.")
			return http.StatusBadRequest
		}

		if err := db.Exec(ddl[i]).Error; err != nil {
			logCtx.WithError(err).Error("Failed to create table.")
			return http.StatusInternalServerError
		}
	}

	return http.StatusCreated
}

// DeleteAccountData removes one account's rows from every mirrored
// table of the provider schema in a single transaction. The tables are
// shared across accounts, so reset must never touch another tenant's
// rows. Deactivation leaves mirrored data in place.
func (pg *Postgres) DeleteAccountData(accountID uint64, schema string, tables []string) int {
	logCtx := log.WithFields(log.Fields{"account_id": accountID, "schema": schema})

	if accountID == 0 || !isValidIdentifier(schema) {
		logCtx.Error("Failed to delete account data. Invalid account or schema.")
		return http.StatusBadRequest
	}

	db := getDB()
	tx := db.Begin()
	if tx.Error != nil {
		logCtx.WithError(tx.Error).Error("Failed to begin account data deletion.")
		return http.StatusInternalServerError
	}

	for _, table := range tables {
		if !isValidIdentifier(table) {
			tx.Rollback()
			logCtx.WithField("table", table).Error(
				"Failed to delete account data. Invalid table name.")
			return http.StatusBadRequest
		}

		err := tx.Exec(fmt.Sprintf("DELETE FROM %s.%s WHERE account_id = ?",
			schema, table), accountID).Error
		if err != nil {
			tx.Rollback()
			logCtx.WithField("table", table).WithError(err).Error(
				"Failed to delete account rows.")
			return http.StatusInternalServerError
		}
	}

	if err := tx.Commit().Error; err != nil {
		logCtx.WithError(err).Error("Failed to commit account data deletion.")
		return http.StatusInternalServerError
	}

	return http.StatusAccepted
}
