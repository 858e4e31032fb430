package postgres

import (
	"context"
	"fmt"

	gddl "userflow/internal/ddl"
	"userflow/internal/storage"
	pgddl "userflow/internal/storage/postgres/ddl"
)

// newRepository is a test hook that points to NewRepository by default.
// Tests may replace this variable to avoid real DB connections.
var newRepository = NewRepository

// wrappedRepo adds Close to *Repository using the close function returned by
// NewRepository.
type wrappedRepo struct {
	*Repository
	closeFn func()
}

var _ storage.Repository = (*wrappedRepo)(nil)

// Close implements storage.Repository.Close.
func (w *wrappedRepo) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}

// init registers the "postgres" backend and its DDL bootstrapper.
func init() {
	storage.Register(kind, func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		r, closeFn, err := newRepository(ctx, Config{
			DSN:     cfg.DSN,
			Table:   cfg.Table,
			Columns: cfg.Columns,
		})
		if err != nil {
			return nil, err
		}
		return &wrappedRepo{Repository: r, closeFn: closeFn}, nil
	})

	storage.RegisterDDL(kind, func(ctx context.Context, repo storage.Repository, def gddl.TableDef) error {
		if err := pgddl.EnsureTable(ctx, repo, def); err != nil {
			return fmt.Errorf("apply DDL: %w", err)
		}
		return nil
	})
}
