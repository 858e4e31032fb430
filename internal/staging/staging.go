// Package staging owns the intermediate delimited file that hands a
// transformed user row from the transform task to the load task.
//
// Each Write truncates the file and records its size and xxh3 fingerprint.
// The loader calls Verify before streaming the file into the database so a
// file rewritten between the two tasks (for example by a concurrent run)
// is detected instead of silently loaded.
package staging

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/zeebo/xxh3"
)

// ErrModified is returned by Verify when the file on disk no longer matches
// the recorded artifact.
var ErrModified = errors.New("staging: file changed since it was written")

// Artifact describes a staged file at the moment it was written.
type Artifact struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
	Sum  uint64 `json:"sum"`
	Rows int    `json:"rows"`
}

// Encode renders rows as delimited lines with no header. Fields containing
// the delimiter, a quote or a line break are quoted.
func Encode(comma rune, rows ...[]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = comma
	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("staging: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Write replaces the file at path with rows and returns the resulting
// Artifact. The parent directory is created when missing.
func Write(ctx context.Context, path string, comma rune, rows ...[]string) (Artifact, error) {
	if err := ctx.Err(); err != nil {
		return Artifact{}, err
	}
	data, err := Encode(comma, rows...)
	if err != nil {
		return Artifact{}, err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Artifact{}, fmt.Errorf("staging: mkdir %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Artifact{}, fmt.Errorf("staging: write %s: %w", path, err)
	}
	return Artifact{
		Path: path,
		Size: int64(len(data)),
		Sum:  xxh3.Hash(data),
		Rows: len(rows),
	}, nil
}

// Verify re-reads the file and compares it with a.
func Verify(a Artifact) error {
	data, err := os.ReadFile(a.Path)
	if err != nil {
		return fmt.Errorf("staging: read %s: %w", a.Path, err)
	}
	if int64(len(data)) != a.Size || xxh3.Hash(data) != a.Sum {
		return fmt.Errorf("%w: %s", ErrModified, a.Path)
	}
	return nil
}

// Open opens the staged file for reading. A canceled context is reported
// without touching the filesystem.
func (a Artifact) Open(ctx context.Context) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	f, err := os.Open(a.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", a.Path, err)
	}
	return f, nil
}

// Name implements datasource.Named.
func (a Artifact) Name() string { return a.Path }

// Remove deletes the staged file. A file that is already gone is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("staging: remove %s: %w", path, err)
	}
	return nil
}

// ReadAll decodes every row of the staged file using comma as delimiter.
func ReadAll(r io.Reader, comma rune) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.ReuseRecord = false
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("staging: decode: %w", err)
	}
	return rows, nil
}
