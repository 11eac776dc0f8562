package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/watzon/clipcast/internal/app"
	"github.com/watzon/clipcast/internal/config"
)

var (
	servePort     int
	serveHost     string
	serveNoReload bool
)

// shutdownMargin is added to the scheduler's drain timeout so the HTTP server
// and database close still get a turn after in-flight cycles are waited on.
const shutdownMargin = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler and HTTP API",
	Long: `Start clipcast: fail posts interrupted by a previous run, register every
active schedule, then serve the HTTP API until SIGINT or SIGTERM.

On shutdown new fires are refused and in-flight cycles get
scheduler.shutdown_timeout to finish.

The logging section of the config file is reloaded when the file changes.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (overrides config)")
	serveCmd.Flags().BoolVar(&serveNoReload, "no-reload", false, "Disable config file watching")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("port") {
		cfg.Server.Port = servePort
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = serveHost
	}

	// Cycles are bound to this context, so it is only cancelled after
	// Shutdown has drained them.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, app.Options{Version: version})
	if err != nil {
		return err
	}

	if !serveNoReload {
		if watcher := watchConfig(ctx); watcher != nil {
			defer func() { _ = watcher.Stop() }()
		}
	}

	log.Info().
		Str("addr", cfg.Server.Address()).
		Str("database", cfg.Database.Path).
		Str("storage", cfg.Storage.Type).
		Str("version", version).
		Msg("Starting clipcast")

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Run(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var runErr error
	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	case runErr = <-errCh:
		if runErr != nil {
			log.Error().Err(runErr).Msg("Server error")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Scheduler.ShutdownTimeout+shutdownMargin)
	defer shutdownCancel()

	if err := a.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown incomplete")
		return errors.Join(runErr, err)
	}

	log.Info().Msg("Shutdown complete")
	return runErr
}

// watchConfig reapplies the logging level whenever the config file changes.
// It returns nil when there is no file to watch.
func watchConfig(ctx context.Context) *ConfigWatcher {
	path, err := config.ConfigFilePath(cfgFile)
	if err != nil {
		log.Debug().Err(err).Msg("No config file to watch")
		return nil
	}

	watcher, err := NewConfigWatcher(path, func(changed string) {
		cfg, loadErr := config.Load(config.LoadOptions{ConfigFile: changed})
		if loadErr != nil {
			log.Warn().Err(loadErr).Msg("Ignoring invalid config change")
			return
		}
		reloadLogging(cfg.Logging)
		log.Info().Str("level", zerolog.GlobalLevel().String()).Msg("Logging level reloaded")
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to watch config file, continuing without reload")
		return nil
	}

	watcher.Start(ctx)
	log.Debug().Str("path", path).Msg("Watching config file")
	return watcher
}
