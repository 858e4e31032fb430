package operator

import (
	"context"
	"fmt"
	"log"

	"userflow/internal/dag"
	"userflow/internal/metrics"
	"userflow/internal/staging"
	"userflow/internal/storage"
)

// BulkLoad streams the file staged by Upstream into Storage.Table through
// the backend's bulk-copy primitive. The staged file is checked against the
// fingerprint recorded when it was written; a mismatch is a *storage.LoadError.
type BulkLoad struct {
	TaskID   string
	Upstream string
	Storage  storage.Config

	Delimiter rune
	// KeepStaged leaves the file on disk after a successful load.
	KeepStaged bool

	Open OpenFunc
}

func (o *BulkLoad) ID() string { return o.TaskID }

func (o *BulkLoad) Execute(ctx context.Context, rc *dag.RunContext) error {
	art, err := dag.PullAs[staging.Artifact](rc, o.Upstream)
	if err != nil {
		return err
	}
	if err := staging.Verify(art); err != nil {
		return &storage.LoadError{Table: o.Storage.Table, Err: err}
	}

	repo, err := openOrDefault(o.Open)(ctx, o.Storage)
	if err != nil {
		return fmt.Errorf("open %s: %w", o.Storage.Kind, err)
	}
	defer repo.Close()

	n, err := storage.Load(ctx, repo, art, storage.CopyOptions{
		Table:     o.Storage.Table,
		Columns:   o.Storage.Columns,
		Delimiter: o.Delimiter,
	})
	if err != nil {
		return err
	}
	metrics.RecordRows(rc.DagID, "loaded", n)
	rc.Push(o.TaskID, dag.ReturnValueKey, n)

	if !o.KeepStaged {
		if err := staging.Remove(art.Path); err != nil {
			log.Printf("bulk_load: task=%s cleanup failed: %v", o.TaskID, err)
		}
	}
	return nil
}
