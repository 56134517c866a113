package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"forex-scanner/internal/cli"
	"forex-scanner/internal/config"
	"forex-scanner/internal/logging"
)

func main() {
	// A missing .env is fine; environment overrides are optional.
	_ = godotenv.Load()

	// The config flag has to be known before cobra parses anything, because
	// config.Load needs it.
	configDir := ""
	fs := pflag.NewFlagSet("pre", pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.StringVar(&configDir, "config", "", "")
	fs.Usage = func() {}
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load(configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLoggerWithConfig(logging.DefaultLogConfig())

	rootCmd := cli.NewRootCmd(cfg, logger)
	if err := rootCmd.Execute(); err != nil {
		logger.Error().Err(err).Msg("Command failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
