package operator

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"userflow/internal/ddl"
	"userflow/internal/storage"
	_ "userflow/internal/storage/sqlite"
)

var userColumns = []string{"firstname", "lastname", "country", "username", "password", "email"}

type counter interface {
	Count(ctx context.Context, table string) (int64, error)
}

func sqliteConfig(t *testing.T) storage.Config {
	t.Helper()
	return storage.Config{
		Kind:    "sqlite",
		DSN:     filepath.Join(t.TempDir(), "airflow.db"),
		Table:   "users",
		Columns: userColumns,
	}
}

func TestCreateTable_Idempotent(t *testing.T) {
	t.Parallel()

	cfg := sqliteConfig(t)
	op := &CreateTable{TaskID: "create_table", Storage: cfg, Table: ddl.TextTable("users", userColumns)}
	for i := 0; i < 2; i++ {
		if err := op.Execute(context.Background(), newRC()); err != nil {
			t.Fatalf("Execute #%d: %v", i+1, err)
		}
	}

	repo, err := storage.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	defer repo.Close()
	n, err := repo.(counter).Count(context.Background(), "users")
	if err != nil || n != 0 {
		t.Fatalf("Count = %d, %v; want empty table", n, err)
	}
}

func TestCreateTable_OpenErrorSurfaces(t *testing.T) {
	t.Parallel()

	refused := &storage.ConnectionError{Kind: "postgres", Op: "ping", Err: errors.New("connection refused")}
	op := &CreateTable{
		TaskID:  "create_table",
		Storage: storage.Config{Kind: "postgres"},
		Table:   ddl.TextTable("users", userColumns),
		Open: func(context.Context, storage.Config) (storage.Repository, error) {
			return nil, refused
		},
	}
	if err := op.Execute(context.Background(), newRC()); !storage.IsConnection(err) {
		t.Fatalf("err = %v, want *storage.ConnectionError", err)
	}
}

func TestCreateTable_UnknownKind(t *testing.T) {
	t.Parallel()

	op := &CreateTable{TaskID: "create_table", Storage: storage.Config{Kind: "oracle"}, Table: ddl.TextTable("users", userColumns)}
	if err := op.Execute(context.Background(), newRC()); err == nil {
		t.Fatal("expected unsupported kind error")
	}
}
