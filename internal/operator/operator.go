// Package operator holds the reusable task types DAGs are assembled from:
// table creation, an HTTP availability sensor, an HTTP fetch, a bulk load of
// a staged file and a sleep placeholder.
//
// Every operator implements dag.Task. Results are pushed to the run context
// under the operator's task id and dag.ReturnValueKey.
package operator

import (
	"context"

	"userflow/internal/storage"
)

// OpenFunc opens a storage repository. storage.New is the default; tests
// substitute fakes.
type OpenFunc func(ctx context.Context, cfg storage.Config) (storage.Repository, error)

func openOrDefault(fn OpenFunc) OpenFunc {
	if fn != nil {
		return fn
	}
	return storage.New
}
