package cmd

import (
	"fmt"
	"time"

	"jobctl/internal/config"
	"jobctl/internal/engine"
	"jobctl/internal/job"
	"jobctl/internal/jobs"
	"jobctl/internal/storage"

	"github.com/spf13/cobra"
)

func ChainCmd(store *storage.Store, cfg *config.Config) *cobra.Command {
	var (
		queue       string
		maxAttempts int
		delay       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "chain <command>...",
		Short: "Add a chain of shell jobs, each stage running after the previous",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chain := make(engine.Chain, 0, len(args))
			submitted := make([]*jobs.ShellJob, 0, len(args))
			for _, command := range args {
				params := jobParams(cfg, queue, 0, 0, maxAttempts, delay, nil)
				j := jobs.NewShellJob(command, params)
				chain = append(chain, []job.Job{j})
				submitted = append(submitted, j)
			}

			ctrl := buildEngine(store, cfg)
			if err := ctrl.SubmitChain(chain); err != nil {
				return fmt.Errorf("failed to enqueue chain: %w", err)
			}

			fmt.Printf("Chain enqueued with %d stage(s):\n", len(submitted))
			for i, j := range submitted {
				fmt.Printf("  stage %d: %s\n", i+1, j.ID())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&queue, "queue", "", "Queue key applied to every stage")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "Max attempts per job (0 = config default)")
	cmd.Flags().DurationVar(&delay, "delay", 0, "Initial delay before the first stage is eligible")
	return cmd
}
