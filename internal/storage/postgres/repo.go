// Package postgres implements storage.Repository on pgx v5. Loads stream the
// staged file straight into COPY ... FROM STDIN on a pooled connection; no
// explicit transaction is opened around the copy.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"userflow/internal/storage"
)

const kind = "postgres"

// Config holds Postgres repository configuration.
type Config struct {
	DSN     string   // connection string for pgxpool
	Table   string   // default target table, e.g. "public.users"
	Columns []string // default column order for COPY
}

// conn is the subset of a pooled connection the repository uses. Tests supply
// a fake so no server is needed.
type conn interface {
	Exec(ctx context.Context, sql string) error
	CopyFrom(ctx context.Context, r io.Reader, sql string) (int64, error)
	Release()
}

// Repository is a Postgres-backed implementation of storage.Repository.
type Repository struct {
	cfg     Config
	acquire func(ctx context.Context) (conn, error)
}

// NewRepository opens a pool, pings it, and returns a Repository plus a close
// function. Connection failures are reported as *storage.ConnectionError.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, nil, &storage.ConnectionError{Kind: kind, Op: "connect", Err: err}
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, &storage.ConnectionError{Kind: kind, Op: "ping", Err: err}
	}
	r := &Repository{
		cfg: cfg,
		acquire: func(ctx context.Context) (conn, error) {
			c, err := pool.Acquire(ctx)
			if err != nil {
				return nil, err
			}
			return poolConn{c}, nil
		},
	}
	return r, pool.Close, nil
}

// newRepositoryFromConn builds a Repository over a single fake connection.
func newRepositoryFromConn(cfg Config, c conn) *Repository {
	return &Repository{
		cfg:     cfg,
		acquire: func(context.Context) (conn, error) { return c, nil },
	}
}

type poolConn struct{ c *pgxpool.Conn }

func (p poolConn) Exec(ctx context.Context, sql string) error {
	_, err := p.c.Exec(ctx, sql)
	return err
}

func (p poolConn) CopyFrom(ctx context.Context, r io.Reader, sql string) (int64, error) {
	tag, err := p.c.Conn().PgConn().CopyFrom(ctx, r, sql)
	return tag.RowsAffected(), err
}

func (p poolConn) Release() { p.c.Release() }

// Exec runs sql on a pooled connection.
func (r *Repository) Exec(ctx context.Context, sql string) error {
	c, err := r.acquire(ctx)
	if err != nil {
		return &storage.ConnectionError{Kind: kind, Op: "acquire", Err: err}
	}
	defer c.Release()

	if err := c.Exec(ctx, sql); err != nil {
		if isConnErr(err) {
			return &storage.ConnectionError{Kind: kind, Op: "exec", Err: err}
		}
		return fmt.Errorf("postgres: exec: %w", err)
	}
	return nil
}

// CopyFromReader streams r into the target table with COPY FROM STDIN in CSV
// format. Rows the server rejects surface as *storage.LoadError.
func (r *Repository) CopyFromReader(ctx context.Context, src io.Reader, opts storage.CopyOptions) (int64, error) {
	if opts.Table == "" {
		opts.Table = r.cfg.Table
	}
	if len(opts.Columns) == 0 {
		opts.Columns = r.cfg.Columns
	}
	sql, err := copySQL(opts)
	if err != nil {
		return 0, err
	}

	c, err := r.acquire(ctx)
	if err != nil {
		return 0, &storage.ConnectionError{Kind: kind, Op: "acquire", Err: err}
	}
	defer c.Release()

	n, err := c.CopyFrom(ctx, src, sql)
	if err != nil {
		if isConnErr(err) {
			return n, &storage.ConnectionError{Kind: kind, Op: "copy", Err: err}
		}
		return n, &storage.LoadError{Table: opts.Table, Err: describe(err)}
	}
	return n, nil
}

// copySQL renders the COPY statement, e.g.
//
//	COPY "users" ("firstname","email") FROM STDIN WITH (FORMAT csv, DELIMITER ',', HEADER false, FORCE_NOT_NULL ("firstname","email"))
//
// CSV format reads an unquoted empty field as NULL; FORCE_NOT_NULL loads it
// as '' like the other backends do.
func copySQL(opts storage.CopyOptions) (string, error) {
	if strings.TrimSpace(opts.Table) == "" {
		return "", fmt.Errorf("postgres: copy: table must not be empty")
	}
	if len(opts.Columns) == 0 {
		return "", fmt.Errorf("postgres: copy: no columns configured")
	}
	cols := strings.Join(mapIdent(opts.Columns), ",")
	return fmt.Sprintf(
		"COPY %s (%s) FROM STDIN WITH (FORMAT csv, DELIMITER %s, HEADER %t, FORCE_NOT_NULL (%s))",
		pgFQN(opts.Table),
		cols,
		pgLiteral(string(opts.Delim())),
		opts.Header,
		cols,
	), nil
}

// isConnErr reports whether err means the server could not be reached or the
// connection broke, as opposed to the server rejecting the statement.
func isConnErr(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08: connection exception.
		return strings.HasPrefix(pgErr.Code, "08")
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	return pgconn.SafeToRetry(err) || pgconn.Timeout(err) || errors.Is(err, io.ErrUnexpectedEOF)
}

// describe keeps the server's detail and SQLSTATE visible in the message.
func describe(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Detail != "" {
		return fmt.Errorf("%w (%s)", err, pgErr.Detail)
	}
	return err
}

// pgIdent safely quotes a single identifier segment for Postgres.
func pgIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

// pgFQN quotes a possibly schema-qualified name like "public.users" to
// "public"."users".
func pgFQN(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = pgIdent(p)
	}
	return strings.Join(parts, ".")
}

// pgLiteral quotes s as a string literal.
func pgLiteral(s string) string { return `'` + strings.ReplaceAll(s, `'`, `''`) + `'` }

// mapIdent maps a list of column names to their quoted forms.
func mapIdent(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = pgIdent(c)
	}
	return out
}
