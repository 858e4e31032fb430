package storage

import (
	"context"
	"fmt"
	"sync"

	"userflow/internal/ddl"
)

// DDLBootstrapper renders backend-specific DDL for def and applies it via
// repo.Exec. Implementations must be idempotent.
type DDLBootstrapper func(ctx context.Context, repo Repository, def ddl.TableDef) error

var (
	ddlMu  sync.RWMutex
	ddlFns = map[string]DDLBootstrapper{}
)

// RegisterDDL registers (or replaces) the DDLBootstrapper for kind. Backends
// call it from init next to Register.
func RegisterDDL(kind string, fn DDLBootstrapper) {
	ddlMu.Lock()
	defer ddlMu.Unlock()
	ddlFns[kind] = fn
}

// EnsureTable creates def on repo using the bootstrapper registered for kind.
func EnsureTable(ctx context.Context, kind string, repo Repository, def ddl.TableDef) error {
	ddlMu.RLock()
	fn, ok := ddlFns[kind]
	ddlMu.RUnlock()
	if !ok {
		return fmt.Errorf("no DDL bootstrapper registered for storage.kind=%q", kind)
	}
	return fn(ctx, repo, def)
}
