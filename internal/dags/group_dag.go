package dags

import (
	"fmt"
	"time"

	"userflow/internal/config"
	"userflow/internal/dag"
	"userflow/internal/operator"
)

// Ids of the group_dag parent and its sub-DAG tasks.
const (
	GroupDAGID     = "group_dag"
	TaskDownloads  = "downloads"
	TaskTransforms = "transforms"
)

// ChildID is the id of a sub-DAG: "<parent>.<child>".
func ChildID(parent, child string) string {
	return parent + "." + child
}

// Downloads builds the <parent>.<child> DAG of three independent download
// placeholders. Its metadata is inherited from the parent.
func Downloads(parent, child string, m dag.Meta, sleep time.Duration) (*dag.DAG, error) {
	return sleepers(ChildID(parent, child), m, sleep, "download_a", "download_b", "download_c")
}

// Transforms builds the <parent>.<child> DAG of three independent transform
// placeholders.
func Transforms(parent, child string, m dag.Meta, sleep time.Duration) (*dag.DAG, error) {
	return sleepers(ChildID(parent, child), m, sleep, "transform_a", "transform_b", "transform_c")
}

func sleepers(id string, m dag.Meta, sleep time.Duration, taskIDs ...string) (*dag.DAG, error) {
	d := dag.New(id, m)
	for _, tid := range taskIDs {
		if err := d.Add(&operator.Sleep{TaskID: tid, Duration: sleep}); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// GroupDAG builds group_dag: downloads >> transforms, each a SubDAG task. The
// child DAGs are returned too so they can be listed and run on their own.
func GroupDAG(g config.GroupDAG, runner *dag.Runner) (*dag.DAG, []*dag.DAG, error) {
	m, err := meta(g.Schedule, "run the downloads sub-DAG, then the transforms sub-DAG")
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", GroupDAGID, err)
	}
	sleep := g.Sleep.D()

	downloads, err := Downloads(GroupDAGID, TaskDownloads, m, sleep)
	if err != nil {
		return nil, nil, err
	}
	transforms, err := Transforms(GroupDAGID, TaskTransforms, m, sleep)
	if err != nil {
		return nil, nil, err
	}

	d := dag.New(GroupDAGID, m)
	if err := d.Add(
		&dag.SubDAG{TaskID: TaskDownloads, Child: downloads, Runner: runner},
		&dag.SubDAG{TaskID: TaskTransforms, Child: transforms, Runner: runner},
	); err != nil {
		return nil, nil, err
	}
	if err := d.Chain(TaskDownloads, TaskTransforms); err != nil {
		return nil, nil, err
	}
	return d, []*dag.DAG{downloads, transforms}, nil
}
