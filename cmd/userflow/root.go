package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"userflow/internal/config"
	"userflow/internal/dag"
	"userflow/internal/dags"
	"userflow/internal/operator"

	// register all backends with the storage factory.
	// config specifies which to use but we need to build in support for all of them.
	_ "userflow/internal/storage/all"
)

const defaultConfigPath = "configs/userflow.json"

// app carries the resolved global flags and configuration shared by every
// subcommand.
type app struct {
	cfgPath        string
	metricsBackend string
	pushgatewayURL string
	verbose        bool

	cfg config.Config

	// open overrides storage.New; tests leave it nil.
	open operator.OpenFunc
}

func execute() int {
	return executeArgs(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
}

func executeArgs(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(&app{})
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "userflow",
		Short:         "Run the user_processing and group_dag workflows",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log.SetOutput(cmd.ErrOrStderr())
			return a.load(cmd)
		},
	}

	root.PersistentFlags().StringVarP(&a.cfgPath, "config", "c", defaultConfigPath, "pipeline config path (.json, .yaml)")
	root.PersistentFlags().StringVar(&a.metricsBackend, "metrics-backend", "", "metrics backend: pushgateway, datadog or none (overrides env METRICS_BACKEND)")
	root.PersistentFlags().StringVar(&a.pushgatewayURL, "pushgateway-url", "", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable verbose logs")

	root.AddCommand(
		newListCmd(a),
		newValidateCmd(a),
		newRunCmd(a),
		newTasksCmd(a),
		newScheduleCmd(a),
	)
	return root
}

// load reads the config file and applies flag overrides. Validation is left
// to the commands so `validate` can report every issue.
func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("metrics-backend") {
		cfg.Metrics.Backend = a.metricsBackend
	}
	if cmd.Flags().Changed("pushgateway-url") {
		cfg.Metrics.PushgatewayURL = a.pushgatewayURL
	}
	a.cfg = cfg
	if a.verbose {
		log.Printf("config: path=%s dags=user_processing,group_dag metrics=%q", a.cfgPath, cfg.Metrics.Backend)
	}
	return nil
}

// checkConfig prints warnings and fails on errors.
func (a *app) checkConfig(w io.Writer) error {
	issues := config.Validate(a.cfg)
	for _, iss := range issues {
		fmt.Fprintf(w, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		return fmt.Errorf("configuration is invalid: %s", a.cfgPath)
	}
	return nil
}

// build validates the config and constructs the DAG registry around runner.
func (a *app) build(cmd *cobra.Command, runner *dag.Runner) (*dags.Registry, error) {
	if err := a.checkConfig(cmd.ErrOrStderr()); err != nil {
		return nil, err
	}
	return dags.Build(a.cfg, dags.Deps{Runner: runner, Open: a.open, Verbose: a.verbose})
}

// newRunner returns a runner that logs per-task detail when -v is set.
func (a *app) newRunner(history *dag.History) *dag.Runner {
	return &dag.Runner{History: history, Verbose: a.verbose}
}
