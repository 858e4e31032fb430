// Package storage defines the backend-agnostic contract used by the load and
// create-table tasks, plus a small registry that maps a storage kind
// ("postgres", "sqlite", "mssql", "mysql") to a constructor.
//
// Backends register themselves from init; import internal/storage/all to
// enable every built-in backend.
package storage

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
)

// Repository is an open connection to a destination store.
type Repository interface {
	// Exec runs a single statement, typically DDL.
	Exec(ctx context.Context, sql string) error

	// CopyFromReader streams delimited rows from r into opts.Table using the
	// backend's bulk-load primitive and returns the number of rows loaded.
	CopyFromReader(ctx context.Context, r io.Reader, opts CopyOptions) (int64, error)

	Close()
}

// CopyOptions describes the layout of the stream passed to CopyFromReader.
type CopyOptions struct {
	Table     string
	Columns   []string
	Delimiter rune
	// Header reports whether the first line is a header to skip.
	Header bool
}

// Delim returns the delimiter, defaulting to a comma.
func (o CopyOptions) Delim() rune {
	if o.Delimiter == 0 {
		return ','
	}
	return o.Delimiter
}

// Config is the backend-agnostic connection description handed to a Factory.
type Config struct {
	Kind    string
	DSN     string
	Table   string
	Columns []string
}

// Factory opens a Repository for cfg.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under kind. Registering the same kind
// twice replaces the previous factory.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[kind] = f
}

// New opens a Repository using the factory registered for cfg.Kind.
func New(ctx context.Context, cfg Config) (Repository, error) {
	mu.RLock()
	f, ok := factories[cfg.Kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// ListKinds returns the registered kinds in sorted order. The slice is a copy.
func ListKinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
