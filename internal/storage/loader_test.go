package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"userflow/internal/datasource"
)

type stringSource struct {
	s   string
	err error
}

func (s stringSource) Open(ctx context.Context) (io.ReadCloser, error) {
	if s.err != nil {
		return nil, s.err
	}
	return io.NopCloser(strings.NewReader(s.s)), nil
}

func TestLoad_StreamsSourceIntoRepository(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	opts := CopyOptions{Table: "users", Columns: []string{"a", "b"}}

	n, err := Load(context.Background(), repo, datasource.Bytes("x,y\n"), opts)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n != 1 {
		t.Fatalf("n = %d, want 1", n)
	}
	if repo.copied != "x,y\n" {
		t.Fatalf("copied = %q", repo.copied)
	}
	if repo.opts.Delim() != ',' || repo.opts.Header {
		t.Fatalf("opts = %+v", repo.opts)
	}
}

func TestLoad_PropagatesErrors(t *testing.T) {
	t.Parallel()

	opts := CopyOptions{Table: "users", Columns: []string{"a"}}

	openErr := errors.New("open failed")
	if _, err := Load(context.Background(), &fakeRepo{}, stringSource{err: openErr}, opts); !errors.Is(err, openErr) {
		t.Fatalf("open err = %v, want %v", err, openErr)
	}

	loadErr := &LoadError{Table: "users", Err: errors.New("extra data after last expected column")}
	repo := &fakeRepo{copyErr: loadErr}
	if _, err := Load(context.Background(), repo, stringSource{s: "a,b,c\n"}, opts); !IsLoad(err) {
		t.Fatalf("copy err = %v, want *LoadError", err)
	}
}

func TestLoad_RejectsBadArguments(t *testing.T) {
	t.Parallel()

	if _, err := Load(context.Background(), nil, stringSource{}, CopyOptions{Columns: []string{"a"}}); err == nil {
		t.Fatalf("expected error for nil repository")
	}
	if _, err := Load(context.Background(), &fakeRepo{}, stringSource{}, CopyOptions{}); err == nil {
		t.Fatalf("expected error for empty columns")
	}
}
