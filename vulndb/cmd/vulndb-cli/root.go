package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/openwebvulndb/openwebvulndb-tools/ledger"
	"github.com/openwebvulndb/openwebvulndb-tools/vulndb"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:               "vulndb-cli",
	Short:             "Maintain the WordPress vulnerability and version database",
	PersistentPreRunE: setupApp,
	PersistentPostRun: closeApp,
}

var rootFlags = struct {
	config string
}{}

var _app app

type app struct {
	Config  vulndb.Config
	Storage *vulndb.Storage
	Ledger  *ledger.Ledger
}

func App() app {
	return _app
}

func main() {
	err := run()
	if err != nil {
		fmt.Printf("FATAL: %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		return err
	}
	return nil
}

func setupApp(cmd *cobra.Command, args []string) error {
	var err error
	_app, err = initApp(rootFlags.config)
	return err
}

func closeApp(cmd *cobra.Command, args []string) {
	if _app.Ledger == nil {
		return
	}
	err := _app.Ledger.Close()
	if err != nil {
		slog.Warn("could not close ledger", "err", err)
	}
}

func initApp(configPath string) (app, error) {
	var app app
	config, err := vulndb.ParseConfigFromFile(configPath)
	if err != nil {
		return app, fmt.Errorf("error reading '%s': %w", configPath, err)
	}
	app.Config = config

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.SlogLevel(),
	}))
	slog.SetDefault(logger)

	app.Storage = vulndb.NewStorage(config.BasePath)

	app.Ledger, err = ledger.Open(config.LedgerPath)
	if err != nil {
		return app, fmt.Errorf("could not open ledger: %w", err)
	}

	return app, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootFlags.config, "config", "config/application.toml", "Path to the configuration file")
}
