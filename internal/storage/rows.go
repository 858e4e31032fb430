package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

// DecodeRows reads every delimited row from r for backends without a native
// "COPY from stream" primitive. Each row must have exactly len(opts.Columns)
// fields; a malformed or short row is a *LoadError.
func DecodeRows(r io.Reader, opts CopyOptions) ([][]any, error) {
	cr := csv.NewReader(r)
	cr.Comma = opts.Delim()
	cr.FieldsPerRecord = len(opts.Columns)

	var rows [][]any
	line := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, &LoadError{Table: opts.Table, Err: fmt.Errorf("row %d: %w", line, err)}
		}
		if opts.Header && line == 1 {
			continue
		}
		row := make([]any, len(rec))
		for i, v := range rec {
			row[i] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}
