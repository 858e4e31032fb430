// Package mysql implements storage.Repository on go-sql-driver/mysql. Loads
// stream the staged file through LOAD DATA LOCAL INFILE using a registered
// reader handler, so the file never has to exist on the server host.
//
// The server must allow local_infile.
package mysql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/go-sql-driver/mysql"

	"userflow/internal/storage"
	myddl "userflow/internal/storage/mysql/ddl"
)

const kind = "mysql"

// Config holds MySQL repository configuration.
type Config struct {
	DSN     string
	Table   string
	Columns []string
}

// Repository is a MySQL-backed implementation of storage.Repository.
type Repository struct {
	db  *sql.DB
	cfg Config
}

var readerSeq atomic.Uint64

// NewRepository validates the DSN, opens the database and pings it.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if _, err := mysql.ParseDSN(cfg.DSN); err != nil {
		return nil, nil, fmt.Errorf("mysql dsn: %w", err)
	}
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, nil, &storage.ConnectionError{Kind: kind, Op: "open", Err: err}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, &storage.ConnectionError{Kind: kind, Op: "ping", Err: err}
	}
	return &Repository{db: db, cfg: cfg}, func() { _ = db.Close() }, nil
}

// Exec executes a single statement.
func (r *Repository) Exec(ctx context.Context, sqlText string) error {
	if _, err := r.db.ExecContext(ctx, sqlText); err != nil {
		if isConnErr(err) {
			return &storage.ConnectionError{Kind: kind, Op: "exec", Err: err}
		}
		return fmt.Errorf("mysql: exec: %w", err)
	}
	return nil
}

// CopyFromReader streams src into the table with LOAD DATA LOCAL INFILE.
func (r *Repository) CopyFromReader(ctx context.Context, src io.Reader, opts storage.CopyOptions) (int64, error) {
	if opts.Table == "" {
		opts.Table = r.cfg.Table
	}
	if len(opts.Columns) == 0 {
		opts.Columns = r.cfg.Columns
	}

	name := fmt.Sprintf("userflow-%d", readerSeq.Add(1))
	stmt, err := loadDataSQL(name, opts)
	if err != nil {
		return 0, err
	}
	mysql.RegisterReaderHandler(name, func() io.Reader { return src })
	defer mysql.DeregisterReaderHandler(name)

	res, err := r.db.ExecContext(ctx, stmt)
	if err != nil {
		if isConnErr(err) {
			return 0, &storage.ConnectionError{Kind: kind, Op: "load", Err: err}
		}
		return 0, &storage.LoadError{Table: opts.Table, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &storage.LoadError{Table: opts.Table, Err: err}
	}
	return n, nil
}

// loadDataSQL renders the LOAD DATA statement for a registered reader.
func loadDataSQL(reader string, opts storage.CopyOptions) (string, error) {
	if strings.TrimSpace(opts.Table) == "" {
		return "", fmt.Errorf("mysql: copy: table must not be empty")
	}
	if len(opts.Columns) == 0 {
		return "", fmt.Errorf("mysql: copy: no columns configured")
	}
	cols := make([]string, len(opts.Columns))
	for i, c := range opts.Columns {
		cols[i] = myddl.QuoteIdent(c)
	}
	ignore := ""
	if opts.Header {
		ignore = " IGNORE 1 LINES"
	}
	return fmt.Sprintf(
		"LOAD DATA LOCAL INFILE 'Reader::%s' INTO TABLE %s CHARACTER SET utf8mb4 "+
			"FIELDS TERMINATED BY %s OPTIONALLY ENCLOSED BY '\"' ESCAPED BY '' "+
			"LINES TERMINATED BY '\\n'%s (%s)",
		reader,
		myddl.Dialect.QuoteFQN(opts.Table),
		literal(string(opts.Delim())),
		ignore,
		strings.Join(cols, ", "),
	), nil
}

func literal(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func isConnErr(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return false
	}
	return errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}
