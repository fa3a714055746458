package postgres

import (
	"net/http"

	log "github.com/sirupsen/logrus"

	"pipet/model/model"
)

// CommitPage executes one page's upsert statements and the cursor
// advance in a single transaction. Write-then-advance: the cursor never
// moves without the page's rows, so a crash between pages resumes from
// a consistent position. The update is guarded by the cursor value the
// sync loop started the page with - if a concurrent writer advanced it,
// the commit rolls back with StatusConflict.
func (pg *Postgres) CommitPage(account *model.Account, commit *model.PageCommit) int {
	logCtx := log.WithFields(log.Fields{"account_id": account.ID,
		"resource": commit.Resource, "cursor": commit.Cursor})

	if account.ID == 0 || commit.Resource == "" {
		logCtx.Error("Failed to commit page. Invalid account or resource.")
		return http.StatusBadRequest
	}

	db := getDB()
	tx := db.Begin()
	if tx.Error != nil {
		logCtx.WithError(tx.Error).Error("Failed to begin page transaction.")
		return http.StatusInternalServerError
	}

	for i := range commit.Statements {
		if err := tx.Exec(commit.Statements[i].SQL, commit.Statements[i].Args...).Error; err != nil {
			tx.Rollback()
			logCtx.WithError(err).Error("Failed to execute upsert statement.")
			return http.StatusInternalServerError
		}
	}

	cursorUpdate := tx.Exec(`UPDATE accounts
		SET cursors = jsonb_set(COALESCE(cursors, '{}'::jsonb), ARRAY[?], to_jsonb(?::text)),
			updated_at = now()
		WHERE id = ? AND COALESCE(cursors->>?, '') = ?`,
		commit.Resource, commit.Cursor, account.ID, commit.Resource, commit.PrevCursor)
	if cursorUpdate.Error != nil {
		tx.Rollback()
		logCtx.WithError(cursorUpdate.Error).Error("Failed to advance cursor.")
		return http.StatusInternalServerError
	}

	if cursorUpdate.RowsAffected == 0 {
		tx.Rollback()
		logCtx.Error("Cursor advanced by a concurrent sync. Aborting page commit.")
		return http.StatusConflict
	}

	if commit.MarkBackfilled {
		err := tx.Exec(`UPDATE accounts
			SET backfilled = jsonb_set(COALESCE(backfilled, '{}'::jsonb), ARRAY[?], 'true'::jsonb)
			WHERE id = ?`, commit.Resource, account.ID).Error
		if err != nil {
			tx.Rollback()
			logCtx.WithError(err).Error("Failed to mark resource as backfilled.")
			return http.StatusInternalServerError
		}
	}

	if err := tx.Commit().Error; err != nil {
		logCtx.WithError(err).Error("Failed to commit page transaction.")
		return http.StatusInternalServerError
	}

	// Keep the in-memory account in step with the committed row.
	if err := account.SetCursor(commit.Resource, commit.Cursor); err != nil {
		logCtx.WithError(err).Error("Failed to update in-memory cursor after commit.")
	}
	if commit.MarkBackfilled {
		if err := account.SetBackfilled(commit.Resource, true); err != nil {
			logCtx.WithError(err).Error("Failed to update in-memory backfill state after commit.")
		}
	}

	return http.StatusAccepted
}

// ExecuteStatements runs statements in one transaction without touching
// cursor state. This is the webhook path - an out-of-band upsert of a
// single resource and its dependents.
func (pg *Postgres) ExecuteStatements(statements []model.Statement) int {
	if len(statements) == 0 {
		return http.StatusAccepted
	}

	db := getDB()
	tx := db.Begin()
	if tx.Error != nil {
		log.WithError(tx.Error).Error("Failed to begin statements transaction.")
		return http.StatusInternalServerError
	}

	for i := range statements {
		if err := tx.Exec(statements[i].SQL, statements[i].Args...).Error; err != nil {
			tx.Rollback()
			log.WithError(err).Error("Failed to execute statement.")
			return http.StatusInternalServerError
		}
	}

	if err := tx.Commit().Error; err != nil {
		log.WithError(err).Error("Failed to commit statements transaction.")
		return http.StatusInternalServerError
	}

	return http.StatusAccepted
}
