package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/evorbrain/evorbrain/cmd/evorbrain/commands"
	"github.com/evorbrain/evorbrain/pkg/domain"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	setupLogging()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := commands.Execute(ctx, Version, Commit, BuildDate); err != nil {
		appErr := domain.AsAppError(err)
		msg := appErr.UserMessage()
		if appErr.Kind == domain.KindInternal {
			// The CLI user owns the machine; show the cause.
			msg = err.Error()
		}
		log.Error().Str("kind", string(appErr.Kind)).Msg(msg)
		stop()
		os.Exit(1)
	}
}

// setupLogging configures the CLI's own console logger. The service
// logger is configured separately from config.yaml.
func setupLogging() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	level := os.Getenv("EVORBRAIN_LOG_LEVEL")
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	switch level {
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
