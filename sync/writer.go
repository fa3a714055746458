package sync

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"

	"pipet/model/model"
)

// BuildStatements converts a parsed record to its idempotent writes:
// the record's own upsert followed by its child-table rows, so the
// parent row always lands before anything referencing its id.
func BuildStatements(record *Record) []model.Statement {
	statements := []model.Statement{BuildUpsert(record)}

	if len(record.Children) > 0 {
		statements = append(statements, buildChildUpserts(record)...)
	}

	return statements
}

// BuildUpsert produces one insert-or-update keyed by (account_id, id).
// Applying the same record twice is a no-op beyond overwriting
// identical values. Columns are emitted in sorted order so equivalent
// input yields byte-identical statements.
func BuildUpsert(record *Record) model.Statement {
	d := record.Descriptor

	columns := []string{"account_id", "id"}
	args := []interface{}{int64(record.AccountID), record.ID}

	for _, column := range sortedColumns(record.Columns) {
		columns = append(columns, column)
		args = append(args, bindValue(record.Columns[column]))
	}

	var conflict string
	if d.AppendOnly || len(record.Columns) == 0 {
		// Source rows are immutable (comments) or carry nothing beyond
		// the key - same id is simply skipped.
		conflict = "ON CONFLICT (account_id, id) DO NOTHING"
	} else {
		conflict = fmt.Sprintf("ON CONFLICT (account_id, id) DO UPDATE SET %s",
			excludedSetClause(columns[2:]))
	}

	return model.Statement{
		SQL: fmt.Sprintf("INSERT INTO %s.%s (%s) VALUES (%s) %s",
			d.Schema, d.Name, strings.Join(columns, ", "),
			placeholders(len(columns)), conflict),
		Args: args,
	}
}

func buildChildUpserts(record *Record) []model.Statement {
	d := record.Descriptor
	child := d.ChildRows

	statements := make([]model.Statement, 0, len(record.Children))
	for _, row := range record.Children {
		columns := []string{"account_id"}
		args := []interface{}{int64(record.AccountID)}

		for _, column := range sortedColumns(row) {
			columns = append(columns, column)
			args = append(args, bindValue(row[column]))
		}

		conflictKey := fmt.Sprintf("account_id, %s, idx", child.ParentColumn)
		statements = append(statements, model.Statement{
			SQL: fmt.Sprintf("INSERT INTO %s.%s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
				d.Schema, child.Name, strings.Join(columns, ", "),
				placeholders(len(columns)), conflictKey,
				excludedSetClause(columns[1:])),
			Args: args,
		})
	}

	return statements
}

func sortedColumns(values map[string]interface{}) []string {
	columns := make([]string, 0, len(values))
	for column := range values {
		columns = append(columns, column)
	}
	sort.Strings(columns)
	return columns
}

func placeholders(n int) string {
	marks := make([]string, n)
	for i := range marks {
		marks[i] = "?"
	}
	return strings.Join(marks, ", ")
}

func excludedSetClause(columns []string) string {
	assignments := make([]string, 0, len(columns))
	for _, column := range columns {
		assignments = append(assignments, fmt.Sprintf("%s = excluded.%s", column, column))
	}
	return strings.Join(assignments, ", ")
}

func bindValue(value interface{}) interface{} {
	switch v := value.(type) {
	case []string:
		return pq.Array(v)
	case []int64:
		return pq.Array(v)
	default:
		return value
	}
}
