package dags

import (
	"context"
	"fmt"
	"log"

	"userflow/internal/config"
	"userflow/internal/dag"
	"userflow/internal/ddl"
	"userflow/internal/metrics"
	"userflow/internal/operator"
	"userflow/internal/staging"
	"userflow/internal/storage"
	"userflow/internal/transformer"
)

// Ids of the user_processing DAG and its tasks.
const (
	UserProcessingID = "user_processing"

	TaskCreateTable    = "create_table"
	TaskIsAPIAvailable = "is_api_available"
	TaskExtractUser    = "extract_user"
	TaskProcessUser    = "process_user"
	TaskStoreUser      = "store_user"
)

// UserProcessing builds create_table >> is_api_available >> extract_user >>
// process_user >> store_user.
func UserProcessing(cfg config.Config, deps Deps) (*dag.DAG, error) {
	up := cfg.UserProcessing
	m, err := meta(up.Schedule, "fetch one user from the user API and load it into the users table")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", UserProcessingID, err)
	}

	db, err := cfg.Connection(config.ConnPostgres)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", UserProcessingID, err)
	}
	api, err := cfg.Connection(config.ConnUserAPI)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", UserProcessingID, err)
	}
	client, err := httpClient(api)
	if err != nil {
		return nil, fmt.Errorf("%s: connection %s: %w", UserProcessingID, config.ConnUserAPI, err)
	}

	sc := storage.Config{
		Kind:    db.Kind,
		DSN:     db.DSN,
		Table:   up.Table,
		Columns: transformer.Columns,
	}
	comma := up.DelimiterRune()

	d := dag.New(UserProcessingID, m)
	err = d.Add(
		&operator.CreateTable{
			TaskID:  TaskCreateTable,
			Storage: sc,
			Table:   ddl.TextTable(up.Table, transformer.Columns),
			Open:    deps.Open,
		},
		&operator.HTTPSensor{
			TaskID:       TaskIsAPIAvailable,
			Client:       client,
			Endpoint:     up.Endpoint,
			PokeInterval: up.Sensor.PokeInterval.D(),
			Timeout:      up.Sensor.Timeout.D(),
			Verbose:      deps.Verbose,
		},
		&operator.HTTPOperator{
			TaskID:         TaskExtractUser,
			Client:         client,
			Endpoint:       up.Endpoint,
			ResponseFilter: decodePayload,
			LogResponse:    up.LogResponse,
		},
		dag.NewTask(TaskProcessUser, processUser(up.StagingPath, comma)),
		&operator.BulkLoad{
			TaskID:     TaskStoreUser,
			Upstream:   TaskProcessUser,
			Storage:    sc,
			Delimiter:  comma,
			KeepStaged: up.KeepStaged,
			Open:       deps.Open,
		},
	)
	if err != nil {
		return nil, err
	}
	if err := d.Chain(TaskCreateTable, TaskIsAPIAvailable, TaskExtractUser, TaskProcessUser, TaskStoreUser); err != nil {
		return nil, err
	}
	return d, nil
}

func decodePayload(body []byte) (any, error) {
	return transformer.Decode(body)
}

// processUser pulls the decoded payload, flattens its first result and
// stages it as one delimited line at path.
func processUser(path string, comma rune) func(ctx context.Context, rc *dag.RunContext) error {
	return func(ctx context.Context, rc *dag.RunContext) error {
		p, err := dag.PullAs[transformer.Payload](rc, TaskExtractUser)
		if err != nil {
			return err
		}
		row, err := transformer.Transform(p)
		if err != nil {
			return err
		}
		art, err := staging.Write(ctx, path, comma, row.Values())
		if err != nil {
			return err
		}
		metrics.RecordRows(rc.DagID, "staged", int64(art.Rows))
		log.Printf("process_user: staged path=%s bytes=%d username=%s", art.Path, art.Size, row.Username)
		rc.Push(TaskProcessUser, dag.ReturnValueKey, art)
		return nil
	}
}
