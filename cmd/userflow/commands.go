package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"userflow/internal/dag"
	"userflow/internal/scheduler"
	"userflow/internal/webui"
)

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List DAGs with their schedule and tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := a.build(cmd, a.newRunner(nil))
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "DAG\tSCHEDULE\tSTART DATE\tTASKS")
			for _, d := range reg.All() {
				schedule := d.Meta.Schedule
				if reg.IsChild(d.ID) {
					schedule = "(sub-dag)"
				}
				start := "-"
				if !d.Meta.StartDate.IsZero() {
					start = d.Meta.StartDate.Format("2006-01-02")
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.ID, schedule, start, strings.Join(d.TaskIDs(), ","))
			}
			return tw.Flush()
		},
	}
}

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and the DAG graphs, then exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := a.build(cmd, a.newRunner(nil)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration is valid: %s\n", a.cfgPath)
			return nil
		},
	}
}

func newRunCmd(a *app) *cobra.Command {
	var logicalDate string

	cmd := &cobra.Command{
		Use:   "run <dag_id>",
		Short: "Run a DAG once and wait for it to finish",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := parseLogicalDate(logicalDate)
			if err != nil {
				return err
			}
			flush := setupMetrics(a.cfg.Metrics)
			defer flush()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			runner := a.newRunner(nil)
			reg, err := a.build(cmd, runner)
			if err != nil {
				return err
			}
			d, ok := reg.Get(args[0])
			if !ok {
				return fmt.Errorf("unknown dag %q (known: %s)", args[0], strings.Join(reg.IDs(), ", "))
			}

			run, err := runner.Run(ctx, d, dag.RunOptions{LogicalDate: date, Trigger: dag.TriggerManual})
			if run != nil {
				printRun(cmd.OutOrStdout(), run)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&logicalDate, "logical-date", "", "logical date of the run (YYYY-MM-DD or RFC 3339; default now)")
	return cmd
}

func newTasksCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect and test individual tasks",
	}
	cmd.AddCommand(newTasksListCmd(a), newTasksTestCmd(a))
	return cmd
}

func newTasksListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list <dag_id>",
		Short: "List the tasks of a DAG in execution order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := a.build(cmd, a.newRunner(nil))
			if err != nil {
				return err
			}
			d, ok := reg.Get(args[0])
			if !ok {
				return fmt.Errorf("unknown dag %q", args[0])
			}
			levels, err := d.Levels()
			if err != nil {
				return err
			}
			for _, level := range levels {
				for _, id := range level {
					fmt.Fprintln(cmd.OutOrStdout(), id)
				}
			}
			return nil
		},
	}
}

// newTasksTestCmd runs one task without its upstream tasks and without
// recording the run, like `airflow tasks test`.
func newTasksTestCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "test <dag_id> <task_id> [logical_date]",
		Short: "Run a single task in isolation",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw string
			if len(args) == 3 {
				raw = args[2]
			}
			date, err := parseLogicalDate(raw)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			runner := a.newRunner(nil)
			reg, err := a.build(cmd, runner)
			if err != nil {
				return err
			}
			d, ok := reg.Get(args[0])
			if !ok {
				return fmt.Errorf("unknown dag %q", args[0])
			}
			start := time.Now()
			if err := runner.RunTask(ctx, d, args[1], dag.RunOptions{LogicalDate: date, Trigger: dag.TriggerTest}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s.%s: success in %s\n", d.ID, args[1], time.Since(start).Truncate(time.Millisecond))
			return nil
		},
	}
}

func newScheduleCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:     "schedule",
		Aliases: []string{"serve"},
		Short:   "Run DAGs on their schedules and serve the status API",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("addr") || a.cfg.Server.Addr == "" {
				a.cfg.Server.Addr = addr
			}
			flush := setupMetrics(a.cfg.Metrics)
			defer flush()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cmd, a)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "status API listen address (overrides server.addr)")
	return cmd
}

// serve schedules every root DAG and blocks in the status server until ctx
// is canceled.
func serve(ctx context.Context, cmd *cobra.Command, a *app) error {
	history := dag.NewHistory(0)
	runner := a.newRunner(history)
	reg, err := a.build(cmd, runner)
	if err != nil {
		return err
	}

	sched := scheduler.New(runner)
	for _, d := range reg.Roots() {
		if _, err := sched.Add(ctx, d); err != nil {
			return err
		}
	}
	sched.Start()

	srv := webui.NewServer(webui.Config{Addr: a.cfg.Server.Addr}, webui.Deps{
		DAGs:    reg,
		Runner:  runner,
		History: history,
		Next:    sched.Next,
	})
	err = srv.ListenAndServe(ctx)

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return errors.Join(err, sched.Stop(stopCtx))
}

// parseLogicalDate accepts "", a date or an RFC 3339 timestamp. The empty
// string yields the zero time, which the runner replaces with now.
func parseLogicalDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("logical date %q: want YYYY-MM-DD or RFC 3339", s)
	}
	return t.UTC(), nil
}

func printRun(w io.Writer, run *dag.Run) {
	fmt.Fprintf(w, "dag=%s run_id=%s logical_date=%s state=%s duration=%s\n",
		run.DagID, run.RunID, run.LogicalDate.Format(time.RFC3339), run.State, run.End.Sub(run.Start).Truncate(time.Millisecond))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, ti := range run.Tasks {
		line := fmt.Sprintf("  %s\t%s", ti.TaskID, ti.State)
		if ti.Error != "" {
			line += "\t" + ti.Error
		}
		fmt.Fprintln(tw, line)
	}
	_ = tw.Flush()
}
