package operator

import (
	"context"
	"errors"
	"os"
	"testing"

	"userflow/internal/dag"
	"userflow/internal/ddl"
	"userflow/internal/staging"
	"userflow/internal/storage"
)

var adaRow = []string{"Ada", "Lovelace", "UK", "ada", "x", "a@b.com"}

// stage creates the users table, writes one staged row and pushes its
// artifact as process_user's return value.
func stage(t *testing.T, cfg storage.Config) (*dag.RunContext, staging.Artifact) {
	t.Helper()
	ctx := context.Background()
	if err := (&CreateTable{TaskID: "create_table", Storage: cfg, Table: ddl.TextTable(cfg.Table, cfg.Columns)}).Execute(ctx, newRC()); err != nil {
		t.Fatalf("create table: %v", err)
	}
	art, err := staging.Write(ctx, t.TempDir()+"/processed_user.csv", ',', adaRow)
	if err != nil {
		t.Fatalf("staging.Write: %v", err)
	}
	rc := newRC()
	rc.Push("process_user", dag.ReturnValueKey, art)
	return rc, art
}

func count(t *testing.T, cfg storage.Config) int64 {
	t.Helper()
	repo, err := storage.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	defer repo.Close()
	n, err := repo.(counter).Count(context.Background(), cfg.Table)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	return n
}

func TestBulkLoad_LoadsAndRemovesStagedFile(t *testing.T) {
	t.Parallel()

	cfg := sqliteConfig(t)
	rc, art := stage(t, cfg)

	op := &BulkLoad{TaskID: "store_user", Upstream: "process_user", Storage: cfg, Delimiter: ','}
	if err := op.Execute(context.Background(), rc); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if n := count(t, cfg); n != 1 {
		t.Fatalf("rows = %d, want 1", n)
	}
	if n, err := dag.PullAs[int64](rc, "store_user"); err != nil || n != 1 {
		t.Fatalf("pushed = %d, %v", n, err)
	}
	if _, err := os.Stat(art.Path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("staged file should be removed, stat err = %v", err)
	}
}

func TestBulkLoad_KeepStaged(t *testing.T) {
	t.Parallel()

	cfg := sqliteConfig(t)
	rc, art := stage(t, cfg)

	op := &BulkLoad{TaskID: "store_user", Upstream: "process_user", Storage: cfg, KeepStaged: true}
	if err := op.Execute(context.Background(), rc); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, err := os.Stat(art.Path); err != nil {
		t.Fatalf("staged file should be kept: %v", err)
	}
}

func TestBulkLoad_ModifiedFileIsLoadError(t *testing.T) {
	t.Parallel()

	cfg := sqliteConfig(t)
	rc, art := stage(t, cfg)
	if err := os.WriteFile(art.Path, []byte("Eve,X,US,eve,y,e@x.com\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	op := &BulkLoad{TaskID: "store_user", Upstream: "process_user", Storage: cfg}
	err := op.Execute(context.Background(), rc)
	if !storage.IsLoad(err) || !errors.Is(err, staging.ErrModified) {
		t.Fatalf("err = %v, want LoadError wrapping staging.ErrModified", err)
	}
	if n := count(t, cfg); n != 0 {
		t.Fatalf("rows = %d, want 0", n)
	}
}

func TestBulkLoad_MalformedRowIsLoadError(t *testing.T) {
	t.Parallel()

	cfg := sqliteConfig(t)
	rc, _ := stage(t, cfg)
	short, err := staging.Write(context.Background(), t.TempDir()+"/short.csv", ',', []string{"only", "three", "fields"})
	if err != nil {
		t.Fatal(err)
	}
	rc.Push("process_user", dag.ReturnValueKey, short)

	op := &BulkLoad{TaskID: "store_user", Upstream: "process_user", Storage: cfg}
	if err := op.Execute(context.Background(), rc); !storage.IsLoad(err) {
		t.Fatalf("err = %v, want *storage.LoadError", err)
	}
	if n := count(t, cfg); n != 0 {
		t.Fatalf("rows = %d, want 0", n)
	}
}

func TestBulkLoad_NoUpstreamValue(t *testing.T) {
	t.Parallel()

	op := &BulkLoad{TaskID: "store_user", Upstream: "process_user", Storage: sqliteConfig(t)}
	if err := op.Execute(context.Background(), newRC()); err == nil {
		t.Fatal("expected error without a staged artifact")
	}
}
