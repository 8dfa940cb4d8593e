package cmd

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"jobctl/internal/config"
	"jobctl/internal/storage"

	"github.com/spf13/cobra"
)

func WorkerCmd(store *storage.Store, cfg *config.Config) *cobra.Command {
	workerCmd := &cobra.Command{
		Use:   "worker",
		Short: "Manage the worker process",
	}

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the job engine and its runner pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl := buildEngine(store, cfg)

			// Clear running flags left by a previous process that died
			// mid-execution.
			if err := ctrl.Init(); err != nil {
				return err
			}
			ctrl.StartRunners()

			log.Printf("Engine started (min runners: %d, max runners: %d)", cfg.MinRunners, cfg.MaxRunners)
			log.Println("Press Ctrl+C to shut down.")

			// Jobs enqueued by other jobctl processes land in SQLite; the
			// refresh tick folds them into the live engine.
			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			for {
				select {
				case sig := <-sigCh:
					log.Printf("Received signal: %v. Shutting down.", sig)
					// In-flight jobs are reset to pending on the next start.
					return nil
				case <-ticker.C:
					if err := ctrl.RefreshFromStore(); err != nil {
						log.Printf("Refresh failed: %v", err)
					}
				}
			}
		},
	}

	workerCmd.AddCommand(startCmd)
	return workerCmd
}
