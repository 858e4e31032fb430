package storage

import (
	"context"
	"fmt"
	"log"
	"time"

	"userflow/internal/datasource"
)

// Load opens src and streams it into repo with CopyFromReader. It logs one
// summary line with the row count and throughput.
//
// Load does not wrap the copy in a transaction of its own; a failed stream
// leaves whatever the backend's bulk-load primitive leaves behind.
func Load(ctx context.Context, repo Repository, src datasource.Source, opts CopyOptions) (int64, error) {
	if repo == nil {
		return 0, fmt.Errorf("load: repository must not be nil")
	}
	if len(opts.Columns) == 0 {
		return 0, fmt.Errorf("load: columns must not be empty")
	}

	rc, err := src.Open(ctx)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	start := time.Now()
	n, err := repo.CopyFromReader(ctx, rc, opts)
	elapsed := time.Since(start)
	if err != nil {
		log.Printf("loader: COPY failed src=%s table=%s after=%s err=%v", datasource.NameOf(src), opts.Table, elapsed.Truncate(time.Millisecond), err)
		return n, err
	}

	rps := float64(0)
	if elapsed > 0 {
		rps = float64(n) / elapsed.Seconds()
	}
	log.Printf("loader: src=%s table=%s inserted=%d rps=%.0f elapsed=%s", datasource.NameOf(src), opts.Table, n, rps, elapsed.Truncate(time.Millisecond))
	return n, nil
}
