package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/watzon/clipcast/internal/config"
)

// version is set at build time with -ldflags "-X".
var version = "0.1.0-dev"

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "clipcast",
	Short: "Scheduled short-video publishing to multiple platforms",
	Long: `Clipcast runs recurring publishing schedules. Each time a schedule fires it
resolves the media to post (uploaded or AI generated), builds a caption and
publishes to every linked account through a logged-in browser profile.

Start the server:
  clipcast serve

Write a starter config:
  clipcast config init`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(config.LoggingConfig{Level: "info", Format: "console"})
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./clipcast.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
}

// loadConfig reads the config file named by --config, or the first one found
// in the default search paths, and applies its logging settings.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{ConfigFile: cfgFile})
	if err != nil {
		return nil, err
	}
	setupLogging(cfg.Logging)
	return cfg, nil
}

// activeLogging is what setupLogging last built log.Logger from.
var activeLogging config.LoggingConfig

func levelFor(cfg config.LoggingConfig) zerolog.Level {
	if verbose {
		return zerolog.DebugLevel
	}
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		return zerolog.InfoLevel
	}
	return level
}

// setupLogging configures zerolog from cfg. --verbose always forces debug.
// It replaces log.Logger, so it must run before any goroutine logs.
func setupLogging(cfg config.LoggingConfig) {
	zerolog.SetGlobalLevel(levelFor(cfg))

	var logger zerolog.Logger
	if cfg.Format == "json" {
		logger = zerolog.New(os.Stderr)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	ctx := logger.With().Timestamp()
	if cfg.Caller {
		ctx = ctx.Caller()
	}
	log.Logger = ctx.Logger()
	activeLogging = cfg
}

// reloadLogging applies cfg to a running process. Only the level changes in
// place; the global level is atomic while log.Logger is not.
func reloadLogging(cfg config.LoggingConfig) {
	zerolog.SetGlobalLevel(levelFor(cfg))

	if cfg.Format != activeLogging.Format || cfg.Caller != activeLogging.Caller {
		log.Warn().
			Str("format", cfg.Format).
			Bool("caller", cfg.Caller).
			Msg("Logging format and caller changes take effect after a restart")
	}
}

// AddCommand adds a command to the root command.
func AddCommand(cmd *cobra.Command) {
	rootCmd.AddCommand(cmd)
}

// Version returns the version string.
func Version() string {
	return fmt.Sprintf("clipcast version %s", version)
}
