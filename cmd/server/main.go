// Command server runs the CodeMind API.
//
// All settings come from the environment (or a .env file in the working
// directory); see internal/config for the full list.
package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/sakif/codemind/internal/config"
	"github.com/sakif/codemind/internal/logging"
	"github.com/sakif/codemind/internal/server"
)

func main() {
	envFile := flag.String("env-file", ".env", "path of an optional .env file")
	flag.Parse()

	// Config errors are reported before the configured logger exists.
	cfg, err := config.Load(*envFile)
	if err != nil {
		logging.Default().Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger, closeLog, err := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	}, os.Stdout)
	if err != nil {
		logging.Default().Error("invalid logging configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.SetDefault(logger)

	os.Exit(run(cfg, logger, closeLog))
}

// run returns the exit code so deferred cleanup happens before os.Exit.
func run(cfg *config.Config, logger *slog.Logger, closeLog func() error) int {
	defer closeLog()

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		return 1
	}

	// Start blocks until SIGINT/SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		return 1
	}
	return 0
}
