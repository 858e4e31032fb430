package sqlite

// Config holds SQLite repository configuration derived from storage.Config.
type Config struct {
	// DSN is a SQLite connection string or file path, e.g.:
	//   "file:users.db?_pragma=busy_timeout(5000)"
	//   ":memory:"
	DSN string

	// Table is the default target table. Dotted names such as "main.users"
	// are quoted segment by segment.
	Table string

	// Columns is the default destination column order.
	Columns []string
}
