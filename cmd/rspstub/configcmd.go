package main

import (
	"fmt"

	"github.com/danmuck/rspstub/internal/config"
	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Write or validate config files",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init <service|target> <path>",
		Short: "Write a config template",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteTemplate(args[1], args[0], force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s config template to %s\n", args[0], args[1])
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	validateCmd := &cobra.Command{
		Use:   "validate <service|target> <path>",
		Short: "Validate a config file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "service":
				if _, err := loadServiceConfig(args[1]); err != nil {
					return err
				}
			case "target":
				tc, err := config.LoadTargetConfig(args[1])
				if err != nil {
					return err
				}
				if _, _, err := config.Target(tc); err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown config kind: %s", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "validated %s config at %s\n", args[0], args[1])
			return nil
		},
	}

	cmd.AddCommand(initCmd, validateCmd)
	return cmd
}
