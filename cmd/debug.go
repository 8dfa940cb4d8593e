package cmd

import (
	"fmt"

	"jobctl/internal/config"
	"jobctl/internal/storage"

	"github.com/spf13/cobra"
)

func DebugCmd(store *storage.Store, cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "debug",
		Short: "Dump job, constraint, dependency and runner-pool state",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl := buildEngine(store, cfg)
			fmt.Print(ctrl.DebugInfo())
			return nil
		},
	}
}
