package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"

	"jobctl/internal/config"

	"github.com/spf13/cobra"
)

func ConfigCmd(cfg *config.Config) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	}

	setCmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value (min-runners, max-runners, idle-timeout-sec, max-attempts, backoff-base)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			value := args[1]

			switch key {
			case "min-runners":
				i, err := strconv.Atoi(value)
				if err != nil {
					return fmt.Errorf("invalid value for min-runners: %s", value)
				}
				cfg.MinRunners = i
			case "max-runners":
				i, err := strconv.Atoi(value)
				if err != nil {
					return fmt.Errorf("invalid value for max-runners: %s", value)
				}
				cfg.MaxRunners = i
			case "idle-timeout-sec":
				i, err := strconv.Atoi(value)
				if err != nil {
					return fmt.Errorf("invalid value for idle-timeout-sec: %s", value)
				}
				cfg.IdleTimeoutSec = i
			case "max-attempts":
				i, err := strconv.Atoi(value)
				if err != nil {
					return fmt.Errorf("invalid value for max-attempts: %s", value)
				}
				cfg.MaxAttempts = i
			case "backoff-base":
				f, err := strconv.ParseFloat(value, 64)
				if err != nil {
					return fmt.Errorf("invalid value for backoff-base: %s", value)
				}
				cfg.BackoffBase = f
			default:
				return fmt.Errorf("unknown config key: %s", key)
			}

			if err := config.SaveConfig(cfg); err != nil {
				return err
			}

			fmt.Printf("%s = %s\n", key, value)
			return nil
		},
	}

	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(setCmd)
	return configCmd
}
