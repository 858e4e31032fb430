package operator

import (
	"context"
	"fmt"
	"log"

	"userflow/internal/dag"
	"userflow/internal/ddl"
	"userflow/internal/storage"
)

// CreateTable ensures Table exists on the configured store. The rendered
// DDL is "create if absent", so re-running it is a no-op.
type CreateTable struct {
	TaskID  string
	Storage storage.Config
	Table   ddl.TableDef
	Open    OpenFunc
}

func (o *CreateTable) ID() string { return o.TaskID }

func (o *CreateTable) Execute(ctx context.Context, rc *dag.RunContext) error {
	repo, err := openOrDefault(o.Open)(ctx, o.Storage)
	if err != nil {
		return fmt.Errorf("open %s: %w", o.Storage.Kind, err)
	}
	defer repo.Close()

	if err := storage.EnsureTable(ctx, o.Storage.Kind, repo, o.Table); err != nil {
		return err
	}
	log.Printf("create_table: kind=%s table=%s columns=%d", o.Storage.Kind, o.Table.FQN, len(o.Table.Columns))
	return nil
}
