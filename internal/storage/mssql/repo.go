// Package mssql implements storage.Repository on go-mssqldb. Loads decode the
// delimited stream and push it through the driver's bulk-copy API
// (mssql.CopyIn) inside one transaction.
package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"userflow/internal/storage"
)

const kind = "mssql"

// Config holds MSSQL repository configuration.
type Config struct {
	DSN     string
	Table   string
	Columns []string
}

// Repository is an MSSQL-backed implementation of storage.Repository.
type Repository struct {
	db  *sql.DB
	cfg Config
}

// NewRepository validates the DSN, opens the database and pings it.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if _, err := msdsn.Parse(cfg.DSN); err != nil {
		return nil, nil, fmt.Errorf("mssql dsn: %w", err)
	}
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, nil, &storage.ConnectionError{Kind: kind, Op: "open", Err: err}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, &storage.ConnectionError{Kind: kind, Op: "ping", Err: err}
	}
	closeFn := func() { _ = db.Close() }
	return &Repository{db: db, cfg: cfg}, closeFn, nil
}

// Exec executes a statement or script against the database.
func (r *Repository) Exec(ctx context.Context, sqlText string) error {
	if _, err := r.db.ExecContext(ctx, sqlText); err != nil {
		if isConnErr(err) {
			return &storage.ConnectionError{Kind: kind, Op: "exec", Err: err}
		}
		return fmt.Errorf("mssql: exec: %w", err)
	}
	return nil
}

// CopyFromReader bulk-inserts the delimited rows in src into the target table.
func (r *Repository) CopyFromReader(ctx context.Context, src io.Reader, opts storage.CopyOptions) (int64, error) {
	if opts.Table == "" {
		opts.Table = r.cfg.Table
	}
	if len(opts.Columns) == 0 {
		opts.Columns = r.cfg.Columns
	}
	if len(opts.Columns) == 0 {
		return 0, fmt.Errorf("mssql: copy: no columns configured")
	}

	rows, err := storage.DecodeRows(src, opts)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &storage.ConnectionError{Kind: kind, Op: "begin", Err: err}
	}
	rollback := func() { _ = tx.Rollback() }
	fail := func(err error) (int64, error) {
		rollback()
		if isConnErr(err) {
			return 0, &storage.ConnectionError{Kind: kind, Op: "copy", Err: err}
		}
		return 0, &storage.LoadError{Table: opts.Table, Err: err}
	}

	stmt, err := tx.PrepareContext(ctx, mssql.CopyIn(opts.Table, mssql.BulkOptions{}, opts.Columns...))
	if err != nil {
		return fail(fmt.Errorf("prepare bulk: %w", err))
	}
	for i := range rows {
		if _, err := stmt.ExecContext(ctx, rows[i]...); err != nil {
			_ = stmt.Close()
			return fail(fmt.Errorf("bulk row %d: %w", i+1, err))
		}
	}
	res, err := stmt.ExecContext(ctx)
	if cerr := stmt.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return fail(fmt.Errorf("bulk finalize: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fail(fmt.Errorf("rows affected: %w", err))
	}
	if err := tx.Commit(); err != nil {
		return fail(fmt.Errorf("commit: %w", err))
	}
	return n, nil
}

// Count returns the number of rows in table.
func (r *Repository) Count(ctx context.Context, table string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT_BIG(*) FROM "+msFQN(table)).Scan(&n)
	return n, err
}

// isConnErr reports whether err came from the transport rather than from the
// server rejecting data.
func isConnErr(err error) bool {
	var msErr mssql.Error
	if errors.As(err, &msErr) {
		return false
	}
	return errors.Is(err, sql.ErrConnDone) || errors.Is(err, io.ErrUnexpectedEOF) ||
		strings.Contains(err.Error(), "connection reset") || strings.Contains(err.Error(), "broken pipe")
}

// msIdent quotes a SQL Server identifier using [brackets], escaping ].
func msIdent(id string) string { return `[` + strings.ReplaceAll(id, `]`, `]]`) + `]` }

// msFQN quotes a possibly schema-qualified name like "dbo.users".
func msFQN(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = msIdent(p)
	}
	return strings.Join(parts, ".")
}
