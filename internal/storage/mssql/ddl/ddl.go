// Package ddl renders and applies SQL Server CREATE TABLE scripts.
//
// T-SQL has no CREATE TABLE IF NOT EXISTS, so the statement is guarded by an
// IF OBJECT_ID(...) IS NULL check instead.
package ddl

import (
	"context"
	"fmt"
	"strings"

	gddl "userflow/internal/ddl"
	"userflow/internal/storage"
)

// Dialect is the SQL Server flavour: [bracketed] identifiers and an
// OBJECT_ID guard.
var Dialect = gddl.Dialect{
	Name:       "mssql ddl",
	QuoteIdent: QuoteIdent,
	MapType:    MapType,
	Wrap: func(fqn, body string) string {
		return fmt.Sprintf(
			"IF OBJECT_ID(N'%s', N'U') IS NULL\nBEGIN\n  CREATE TABLE %s (\n    %s\n  );\nEND;",
			fqn, fqn, body,
		)
	},
}

// QuoteIdent brackets a SQL Server identifier, escaping closing brackets.
//
//	name      -> [name]
//	weird]id  -> [weird]]id]
func QuoteIdent(id string) string {
	return "[" + strings.ReplaceAll(id, "]", "]]") + "]"
}

// MapType maps a logical kind to a SQL Server type. Text columns are
// NVARCHAR(MAX) so user names outside Latin-1 survive.
func MapType(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "int", "integer", "bigint":
		return "BIGINT"
	case "bool", "boolean":
		return "BIT"
	case "timestamp", "datetime", "timestamptz":
		return "DATETIME2"
	default:
		return "NVARCHAR(MAX)"
	}
}

func BuildCreateTableSQL(def gddl.TableDef) (string, error) {
	return gddl.BuildCreateTableSQL(def, Dialect)
}

// EnsureTable creates def if it does not exist.
func EnsureTable(ctx context.Context, repo storage.Repository, def gddl.TableDef) error {
	sql, err := BuildCreateTableSQL(def)
	if err != nil {
		return err
	}
	return repo.Exec(ctx, sql)
}
