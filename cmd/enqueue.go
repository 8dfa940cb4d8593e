package cmd

import (
	"fmt"
	"time"

	"jobctl/internal/config"
	"jobctl/internal/jobs"
	"jobctl/internal/storage"

	"github.com/spf13/cobra"
)

func EnqueueCmd(store *storage.Store, cfg *config.Config) *cobra.Command {
	var (
		queue         string
		priority      int
		queuePriority int
		maxAttempts   int
		delay         time.Duration
		constraints   []string
	)

	cmd := &cobra.Command{
		Use:   "enqueue <command>",
		Short: "Add a shell job to the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := jobParams(cfg, queue, priority, queuePriority, maxAttempts, delay, constraints)
			j := jobs.NewShellJob(args[0], params)

			ctrl := buildEngine(store, cfg)
			if err := ctrl.SubmitJob(j); err != nil {
				return fmt.Errorf("failed to enqueue job: %w", err)
			}

			fmt.Printf("Job enqueued: %s\n", j.ID())
			return nil
		},
	}

	cmd.Flags().StringVar(&queue, "queue", "", "Queue key for serialized execution")
	cmd.Flags().IntVar(&priority, "priority", 0, "Global priority (higher runs first)")
	cmd.Flags().IntVar(&queuePriority, "queue-priority", 0, "Priority within the queue")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "Max attempts (0 = config default, -1 = unlimited)")
	cmd.Flags().DurationVar(&delay, "delay", 0, "Initial delay before the job is eligible")
	cmd.Flags().StringArrayVar(&constraints, "constraint", nil, "Constraint key gating eligibility (repeatable)")
	return cmd
}
