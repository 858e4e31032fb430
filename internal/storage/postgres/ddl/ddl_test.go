package ddl

import (
	"context"
	"io"
	"testing"

	gddl "userflow/internal/ddl"
	"userflow/internal/storage"
)

type execRecorder struct{ stmts []string }

func (r *execRecorder) Exec(_ context.Context, sql string) error {
	r.stmts = append(r.stmts, sql)
	return nil
}

func (r *execRecorder) CopyFromReader(context.Context, io.Reader, storage.CopyOptions) (int64, error) {
	return 0, nil
}

func (r *execRecorder) Close() {}

func TestBuildCreateTableSQL_UsersTable(t *testing.T) {
	t.Parallel()

	def := gddl.TextTable("users", []string{"firstname", "lastname", "country", "username", "password", "email"})
	got, err := BuildCreateTableSQL(def)
	if err != nil {
		t.Fatalf("BuildCreateTableSQL: %v", err)
	}
	want := "CREATE TABLE IF NOT EXISTS \"users\" (\n" +
		"  \"firstname\" TEXT NOT NULL,\n" +
		"  \"lastname\" TEXT NOT NULL,\n" +
		"  \"country\" TEXT NOT NULL,\n" +
		"  \"username\" TEXT NOT NULL,\n" +
		"  \"password\" TEXT NOT NULL,\n" +
		"  \"email\" TEXT NOT NULL\n" +
		");"
	if got != want {
		t.Fatalf("SQL mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestMapType(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"int":         "BIGINT",
		" Boolean ":   "BOOLEAN",
		"timestamptz": "TIMESTAMPTZ",
		"text":        "TEXT",
		"":            "TEXT",
	}
	for in, want := range cases {
		if got := MapType(in); got != want {
			t.Errorf("MapType(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEnsureTable_ExecsOnce(t *testing.T) {
	t.Parallel()

	rec := &execRecorder{}
	def := gddl.TextTable("public.users", []string{"email"})
	if err := EnsureTable(context.Background(), rec, def); err != nil {
		t.Fatalf("EnsureTable: %v", err)
	}
	if len(rec.stmts) != 1 {
		t.Fatalf("stmts = %q, want exactly one", rec.stmts)
	}
	if err := EnsureTable(context.Background(), rec, gddl.TableDef{}); err == nil {
		t.Fatalf("expected error for empty table def")
	}
	if len(rec.stmts) != 1 {
		t.Fatalf("invalid def must not reach Exec")
	}
}
