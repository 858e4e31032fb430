// Package ddl defines a small, backend-agnostic model for SQL DDL and a
// renderer for idempotent CREATE TABLE statements.
//
// Backends describe their SQL flavour with a Dialect (identifier quoting, type
// mapping, and how "create if absent" is spelled) and render through
// BuildCreateTableSQL.
package ddl

import (
	"fmt"
	"sort"
	"strings"
)

// Dialect captures the parts of CREATE TABLE that differ between backends.
type Dialect struct {
	// Name prefixes error messages, e.g. "postgres ddl".
	Name string
	// QuoteIdent quotes one identifier segment.
	QuoteIdent func(string) string
	// MapType maps ColumnDef.Kind to a SQL type.
	MapType func(kind string) string
	// Wrap turns the quoted table name and the column block into the final
	// statement. Nil means "CREATE TABLE IF NOT EXISTS".
	Wrap func(fqn, body string) string
}

// QuoteFQN quotes every non-empty dotted segment of fqn with d.QuoteIdent.
func (d Dialect) QuoteFQN(fqn string) string {
	parts := strings.Split(fqn, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, d.QuoteIdent(p))
	}
	return strings.Join(out, ".")
}

// DoubleQuote quotes an identifier ANSI style, escaping embedded quotes.
func DoubleQuote(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// BuildCreateTableSQL renders a statement that creates t when it does not
// exist yet.
//
// Rules:
//   - t.FQN must be non-empty and t must have at least one column.
//   - Each column needs a Name and either SQLType or a Kind the dialect maps.
//   - Primary-key columns are always NOT NULL and listed in a separate,
//     alphabetically sorted PRIMARY KEY clause.
//   - Default is emitted as raw SQL.
func BuildCreateTableSQL(t TableDef, d Dialect) (string, error) {
	if d.QuoteIdent == nil {
		d.QuoteIdent = DoubleQuote
	}
	prefix := d.Name
	if prefix == "" {
		prefix = "ddl"
	}

	fqn := strings.TrimSpace(t.FQN)
	if fqn == "" {
		return "", fmt.Errorf("%s: table FQN must not be empty", prefix)
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("%s: at least one column is required", prefix)
	}

	cols := make([]string, 0, len(t.Columns)+1)
	pks := make([]string, 0, len(t.Columns))

	for _, c := range t.Columns {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return "", fmt.Errorf("%s: column with empty name in table %s", prefix, fqn)
		}
		typ := strings.TrimSpace(c.SQLType)
		if typ == "" && d.MapType != nil && c.Kind != "" {
			typ = d.MapType(c.Kind)
		}
		if typ == "" {
			return "", fmt.Errorf("%s: column %s missing SQLType", prefix, name)
		}

		var sb strings.Builder
		sb.WriteString(d.QuoteIdent(name))
		sb.WriteByte(' ')
		sb.WriteString(typ)
		if !c.Nullable || c.PrimaryKey {
			sb.WriteString(" NOT NULL")
		}
		if def := strings.TrimSpace(c.Default); def != "" {
			sb.WriteString(" DEFAULT ")
			sb.WriteString(def)
		}
		cols = append(cols, sb.String())

		if c.PrimaryKey {
			pks = append(pks, d.QuoteIdent(name))
		}
	}

	if len(pks) > 0 {
		sort.Strings(pks)
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pks, ", ")))
	}

	quoted := d.QuoteFQN(fqn)
	if d.Wrap != nil {
		return d.Wrap(quoted, strings.Join(cols, ",\n    ")), nil
	}
	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (\n  %s\n);",
		quoted,
		strings.Join(cols, ",\n  "),
	), nil
}
