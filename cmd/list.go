package cmd

import (
	"fmt"
	"time"

	"jobctl/internal/storage"

	"github.com/spf13/cobra"
)

func ListCmd(store *storage.Store) *cobra.Command {
	var queue string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List outstanding jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			specs := store.GetAllJobSpecs()
			if queue != "" {
				specs = store.GetJobsInQueue(queue)
			}

			if len(specs) == 0 {
				fmt.Println("No outstanding jobs.")
				return nil
			}

			fmt.Println("ID\t\tFactory\t\tQueue\t\tAttempts\tCreated")
			for _, spec := range specs {
				created := time.UnixMilli(spec.CreateTime).Format(time.RFC3339)
				fmt.Printf("%s\t%s\t%s\t%d/%d\t%s\n",
					spec.ID, spec.FactoryKey, spec.QueueKey, spec.RunAttempt, spec.MaxAttempts, created)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&queue, "queue", "", "Only show jobs in this queue")
	return cmd
}

func StatusCmd(store *storage.Store) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show a summary of outstanding work",
		RunE: func(cmd *cobra.Command, args []string) error {
			byFactory := store.CountsByFactory()
			byQueue := store.CountsByQueue()

			fmt.Println("--- Jobs by factory ---")
			if len(byFactory) == 0 {
				fmt.Println("No jobs in the queue.")
			}
			for factory, count := range byFactory {
				fmt.Printf("%s: \t%d\n", factory, count)
			}

			fmt.Println("\n--- Jobs by queue ---")
			for queue, count := range byQueue {
				if queue == "" {
					queue = "(none)"
				}
				fmt.Printf("%s: \t%d\n", queue, count)
			}
			return nil
		},
	}
}
