package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"shopbot/internal/config"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
		Long:  "Shows the configuration after defaults, the YAML file and environment overrides are applied. Secrets are masked.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective config as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return printJSON(config.Sanitize(cfg))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. enricher.allowedHosts)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			val, err := config.GetByPath(config.Sanitize(cfg), args[0])
			if err != nil {
				return err
			}
			return printJSON(val)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show the config file in use",
		Run: func(cmd *cobra.Command, args []string) {
			if p := resolveConfigPath(); p != "" {
				fmt.Println(p)
				return
			}
			fmt.Println("(none: defaults and environment)")
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the config and exit non-zero on errors",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(); err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	})

	var out string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the built-in defaults to a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Save(out, config.Defaults()); err != nil {
				return err
			}
			logger.Info("config written", "path", out)
			return nil
		},
	}
	initCmd.Flags().StringVarP(&out, "output", "o", defaultConfigFile, "file to write")
	cmd.AddCommand(initCmd)

	return cmd
}
