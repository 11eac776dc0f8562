package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/watzon/clipcast/internal/config"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Config file commands",
	// Overrides the root hook: these commands must work without a valid config.
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(config.LoggingConfig{Level: "info", Format: "console"})
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a config file with default values",
	Long: `Write a config file populated with every default value.

The path defaults to ./clipcast.yaml. An existing file is left untouched
unless --force is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and validate the config file",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

func init() {
	configInitCmd.Flags().BoolVarP(&configForce, "force", "f", false, "Overwrite an existing file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	rootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := "clipcast.yaml"
	if len(args) == 1 {
		path = args[0]
	}

	if err := config.WriteFile(path, config.Default(), configForce); err != nil {
		if errors.Is(err, config.ErrConfigExists) {
			return fmt.Errorf("%w (use --force to overwrite)", err)
		}
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	path, err := config.ConfigFilePath(cfgFile)
	if err != nil {
		return err
	}

	cfg, err := config.Load(config.LoadOptions{ConfigFile: path})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s is valid\n", path)
	fmt.Fprintf(out, "  server:   %s\n", cfg.Server.Address())
	fmt.Fprintf(out, "  database: %s\n", cfg.Database.Path)
	fmt.Fprintf(out, "  storage:  %s\n", cfg.Storage.Type)
	fmt.Fprintf(out, "  content:  %s\n", cfg.Content.Provider)
	return nil
}
