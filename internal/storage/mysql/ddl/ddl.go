// Package ddl renders and applies MySQL CREATE TABLE statements.
package ddl

import (
	"context"
	"strings"

	gddl "userflow/internal/ddl"
	"userflow/internal/storage"
)

// Dialect is the MySQL flavour: `backtick` identifiers and
// CREATE TABLE IF NOT EXISTS.
var Dialect = gddl.Dialect{
	Name:       "mysql ddl",
	QuoteIdent: QuoteIdent,
	MapType:    MapType,
}

// QuoteIdent quotes id with backticks, doubling embedded backticks.
func QuoteIdent(id string) string {
	return "`" + strings.ReplaceAll(id, "`", "``") + "`"
}

func MapType(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "int", "integer", "bigint":
		return "BIGINT"
	case "bool", "boolean":
		return "TINYINT(1)"
	case "timestamp", "datetime":
		return "DATETIME(6)"
	default:
		return "TEXT"
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
