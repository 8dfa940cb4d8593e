package cmd

import (
	"fmt"

	"jobctl/internal/config"
	"jobctl/internal/storage"

	"github.com/spf13/cobra"
)

func CancelCmd(store *storage.Store, cfg *config.Config) *cobra.Command {
	var queue string

	cmd := &cobra.Command{
		Use:   "cancel [job-id]",
		Short: "Cancel a job by ID, or every job in a queue with --queue",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && queue == "" {
				return fmt.Errorf("provide a job ID or --queue")
			}

			ctrl := buildEngine(store, cfg)

			if queue != "" {
				ctrl.CancelAllInQueue(queue)
				fmt.Printf("Cancelled all jobs in queue %q.\n", queue)
				return nil
			}

			ctrl.CancelJob(args[0])
			fmt.Printf("Cancelled job %s.\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&queue, "queue", "", "Cancel every job in this queue")
	return cmd
}
