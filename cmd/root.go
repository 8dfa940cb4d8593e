package cmd

import (
	"log"
	"time"

	"jobctl/internal/config"
	"jobctl/internal/engine"
	"jobctl/internal/job"
	"jobctl/internal/jobs"
	"jobctl/internal/storage"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "jobctl",
	Short: "A durable, dependency-aware job execution engine",
}

func Execute(store *storage.Store, cfg *config.Config) {

	rootCmd.AddCommand(EnqueueCmd(store, cfg))
	rootCmd.AddCommand(ChainCmd(store, cfg))
	rootCmd.AddCommand(ListCmd(store))
	rootCmd.AddCommand(StatusCmd(store))
	rootCmd.AddCommand(WorkerCmd(store, cfg))
	rootCmd.AddCommand(CancelCmd(store, cfg))
	rootCmd.AddCommand(DebugCmd(store, cfg))
	rootCmd.AddCommand(ConfigCmd(cfg))

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

// buildEngine wires the registries, tracker and controller around the
// store. Runners are only started by the worker command.
func buildEngine(store *storage.Store, cfg *config.Config) *engine.Controller {
	factories := job.NewRegistry()
	jobs.RegisterJobs(factories)

	constraints := job.NewConstraintRegistry()
	jobs.RegisterConstraints(constraints)

	tracker := engine.NewTracker()

	return engine.NewController(store, factories, constraints, tracker, engine.Options{
		MinGeneralRunners:        cfg.MinRunners,
		MaxGeneralRunners:        cfg.MaxRunners,
		GeneralRunnerIdleTimeout: time.Duration(cfg.IdleTimeoutSec) * time.Second,
		BackoffBase:              cfg.BackoffBase,
	})
}

// jobParams assembles the engine parameters the enqueue-style commands
// share.
func jobParams(cfg *config.Config, queue string, priority, queuePriority, maxAttempts int, delay time.Duration, constraints []string) job.Parameters {
	if maxAttempts == 0 {
		maxAttempts = cfg.MaxAttempts
	}
	params := job.DefaultParameters()
	params.Queue = queue
	params.MaxAttempts = maxAttempts
	params.GlobalPriority = priority
	params.QueuePriority = queuePriority
	params.InitialDelay = delay
	params.Constraints = constraints
	return params
}
