// Package sqlite implements storage.Repository on modernc.org/sqlite.
//
// SQLite has no COPY protocol, so CopyFromReader decodes the delimited stream
// and inserts every row through one prepared statement inside a transaction.
// A bad row rolls the whole load back.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"userflow/internal/storage"
)

const kind = "sqlite"

// Repository is a SQLite-backed implementation of storage.Repository.
type Repository struct {
	db  *sql.DB
	cfg Config
}

// NewRepository opens the database, pings it, and returns a Repository plus a
// close function.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, nil, fmt.Errorf("sqlite: DSN must not be empty")
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, nil, &storage.ConnectionError{Kind: kind, Op: "open", Err: err}
	}
	// One connection keeps ":memory:" databases alive across calls and
	// serialises writers.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, nil, &storage.ConnectionError{Kind: kind, Op: "ping", Err: err}
	}

	closeFn := func() { _ = db.Close() }
	return &Repository{db: db, cfg: cfg}, closeFn, nil
}

// Exec executes a single statement (typically DDL).
func (r *Repository) Exec(ctx context.Context, sqlText string) error {
	if strings.TrimSpace(sqlText) == "" {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, sqlText); err != nil {
		return fmt.Errorf("sqlite: exec: %w", err)
	}
	return nil
}

// CopyFromReader decodes delimited rows from src and inserts them in one
// transaction.
func (r *Repository) CopyFromReader(ctx context.Context, src io.Reader, opts storage.CopyOptions) (int64, error) {
	if opts.Table == "" {
		opts.Table = r.cfg.Table
	}
	if len(opts.Columns) == 0 {
		opts.Columns = r.cfg.Columns
	}
	if len(opts.Columns) == 0 {
		return 0, fmt.Errorf("sqlite: copy: columns must not be empty")
	}

	rows, err := storage.DecodeRows(src, opts)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	placeholders := make([]string, len(opts.Columns))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	stmtSQL := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		quoteFQN(opts.Table),
		strings.Join(quoteAll(opts.Columns), ", "),
		strings.Join(placeholders, ", "),
	)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &storage.ConnectionError{Kind: kind, Op: "begin", Err: err}
	}
	stmt, err := tx.PrepareContext(ctx, stmtSQL)
	if err != nil {
		_ = tx.Rollback()
		return 0, &storage.LoadError{Table: opts.Table, Err: fmt.Errorf("prepare insert: %w", err)}
	}
	defer stmt.Close()

	var inserted int64
	for i, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			_ = tx.Rollback()
			return 0, &storage.LoadError{Table: opts.Table, Err: fmt.Errorf("row %d: %w", i+1, err)}
		}
		inserted++
	}
	if err := tx.Commit(); err != nil {
		return 0, &storage.LoadError{Table: opts.Table, Err: fmt.Errorf("commit: %w", err)}
	}
	return inserted, nil
}

// Count returns the number of rows in table. It is used by the CLI summary
// and by tests.
func (r *Repository) Count(ctx context.Context, table string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteFQN(table)).Scan(&n)
	return n, err
}

func quoteIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

func quoteFQN(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = quoteIdent(p)
	}
	return strings.Join(parts, ".")
}

func quoteAll(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = quoteIdent(c)
	}
	return out
}
