// Package ddl renders and applies SQLite CREATE TABLE statements.
package ddl

import (
	"context"
	"strings"

	gddl "userflow/internal/ddl"
	"userflow/internal/storage"
)

// Dialect is the SQLite flavour. SQLite types are affinities, so the mapping
// only distinguishes integers and reals from text.
var Dialect = gddl.Dialect{
	Name:       "sqlite ddl",
	QuoteIdent: gddl.DoubleQuote,
	MapType:    MapType,
}

func MapType(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "int", "integer", "bigint", "bool", "boolean":
		return "INTEGER"
	case "float", "double", "real":
		return "REAL"
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
