// Package ddl renders and applies Postgres CREATE TABLE statements for the
// generic ddl.TableDef model.
package ddl

import (
	"context"
	"strings"

	gddl "userflow/internal/ddl"
	"userflow/internal/storage"
)

// Dialect is the Postgres flavour: double-quoted identifiers and
// CREATE TABLE IF NOT EXISTS.
var Dialect = gddl.Dialect{
	Name:       "postgres ddl",
	QuoteIdent: gddl.DoubleQuote,
	MapType:    MapType,
}

// MapType maps a logical kind to a Postgres type. Unknown kinds are TEXT.
func MapType(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "int", "integer", "bigint":
		return "BIGINT"
	case "bool", "boolean":
		return "BOOLEAN"
	case "timestamp", "timestamptz":
		return "TIMESTAMPTZ"
	default:
		return "TEXT"
	}
}

// BuildCreateTableSQL renders def for Postgres.
func BuildCreateTableSQL(def gddl.TableDef) (string, error) {
	return gddl.BuildCreateTableSQL(def, Dialect)
}

// EnsureTable creates def if it does not exist. Running it against an
// existing table is a no-op.
func EnsureTable(ctx context.Context, repo storage.Repository, def gddl.TableDef) error {
	sql, err := BuildCreateTableSQL(def)
	if err != nil {
		return err
	}
	return repo.Exec(ctx, sql)
}
