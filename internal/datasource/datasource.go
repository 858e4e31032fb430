// Package datasource defines the byte-stream abstraction the loader reads
// from. The staged artifact (staging.Artifact) is the production Source;
// Bytes serves in-memory content.
package datasource

import (
	"bytes"
	"context"
	"fmt"
	"io"
)

// Source opens a fresh reader over its content. Callers close it.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Named is implemented by sources that can identify themselves in logs,
// e.g. by file path.
type Named interface {
	Name() string
}

// NameOf returns the name of src, falling back to its dynamic type.
func NameOf(src Source) string {
	if n, ok := src.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", src)
}

// Bytes is a Source over an in-memory buffer. Every Open starts from the
// beginning.
type Bytes []byte

// Open returns a reader over b, or ctx.Err() if ctx is already done.
func (b Bytes) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

// Name implements Named.
func (b Bytes) Name() string { return fmt.Sprintf("memory(%d bytes)", len(b)) }
