package sqlite

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	gddl "userflow/internal/ddl"
	"userflow/internal/storage"
)

var userColumns = []string{"firstname", "lastname", "country", "username", "password", "email"}

// newRepo opens a file-backed database under t.TempDir and creates the users
// table through the registered DDL bootstrapper.
func newRepo(tb testing.TB) *wrappedRepo {
	tb.Helper()
	ctx := context.Background()
	dsn := filepath.Join(tb.TempDir(), "users.db")
	r, closeFn, err := NewRepository(ctx, Config{DSN: dsn, Table: "users", Columns: userColumns})
	if err != nil {
		tb.Fatalf("NewRepository: %v", err)
	}
	w := &wrappedRepo{Repository: r, closeFn: closeFn}
	tb.Cleanup(w.Close)
	if err := storage.EnsureTable(ctx, kind, w, gddl.TextTable("users", userColumns)); err != nil {
		tb.Fatalf("EnsureTable: %v", err)
	}
	return w
}

func TestCopyFromReader_LoadsStagedLine(t *testing.T) {
	t.Parallel()

	r := newRepo(t)
	ctx := context.Background()

	n, err := r.CopyFromReader(ctx, strings.NewReader("Ada,Lovelace,UK,ada,x,a@b.com\n"), storage.CopyOptions{})
	if err != nil {
		t.Fatalf("CopyFromReader: %v", err)
	}
	if n != 1 {
		t.Fatalf("n = %d, want 1", n)
	}

	var first, email string
	if err := r.db.QueryRowContext(ctx, `SELECT firstname, email FROM users`).Scan(&first, &email); err != nil {
		t.Fatalf("select: %v", err)
	}
	if first != "Ada" || email != "a@b.com" {
		t.Fatalf("row = (%q, %q)", first, email)
	}
}

func TestEnsureTable_Idempotent(t *testing.T) {
	t.Parallel()

	r := newRepo(t)
	ctx := context.Background()
	if _, err := r.CopyFromReader(ctx, strings.NewReader("a,b,c,d,e,f\n"), storage.CopyOptions{}); err != nil {
		t.Fatalf("CopyFromReader: %v", err)
	}
	if err := storage.EnsureTable(ctx, kind, r, gddl.TextTable("users", userColumns)); err != nil {
		t.Fatalf("second EnsureTable: %v", err)
	}
	n, err := r.Count(ctx, "users")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Fatalf("Count = %d, want existing row preserved", n)
	}
}

func TestCopyFromReader_MalformedRowIsLoadError(t *testing.T) {
	t.Parallel()

	r := newRepo(t)
	ctx := context.Background()

	_, err := r.CopyFromReader(ctx, strings.NewReader("a,b,c,d,e,f\nonly,three,fields\n"), storage.CopyOptions{})
	if !storage.IsLoad(err) {
		t.Fatalf("err = %v, want *storage.LoadError", err)
	}
	if n, _ := r.Count(ctx, "users"); n != 0 {
		t.Fatalf("Count = %d, want 0 (nothing committed)", n)
	}
}

func TestCopyFromReader_MissingTableIsLoadError(t *testing.T) {
	t.Parallel()

	r := newRepo(t)
	_, err := r.CopyFromReader(context.Background(), strings.NewReader("x\n"), storage.CopyOptions{Table: "nope", Columns: []string{"a"}})
	if !storage.IsLoad(err) {
		t.Fatalf("err = %v, want *storage.LoadError", err)
	}
}

func TestCopyFromReader_HeaderAndDelimiter(t *testing.T) {
	t.Parallel()

	r := newRepo(t)
	ctx := context.Background()
	body := strings.Join(userColumns, ";") + "\nA;B;C;D;\"p;w\";F\n"
	n, err := r.CopyFromReader(ctx, strings.NewReader(body), storage.CopyOptions{Delimiter: ';', Header: true})
	if err != nil {
		t.Fatalf("CopyFromReader: %v", err)
	}
	if n != 1 {
		t.Fatalf("n = %d, want 1 (header skipped)", n)
	}
	var pw string
	if err := r.db.QueryRowContext(ctx, `SELECT password FROM users`).Scan(&pw); err != nil {
		t.Fatalf("select: %v", err)
	}
	if pw != "p;w" {
		t.Fatalf("password = %q", pw)
	}
}

func TestNewRepository_EmptyDSN(t *testing.T) {
	t.Parallel()

	if _, _, err := NewRepository(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error for empty DSN")
	}
}
