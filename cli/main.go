package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/gocircum/nordconnect"
	"github.com/gocircum/nordconnect/core/app"
	"github.com/gocircum/nordconnect/core/config"
	"github.com/gocircum/nordconnect/core/connerr"
	"github.com/gocircum/nordconnect/pkg/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, cmd, err := parseArgs(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return connerr.ExitOK
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return connerr.ExitUsage
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return connerr.ExitError
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.Log.Format = opts.logFormat
	}
	logging.InitLogger(cfg.Log.Level, cfg.Log.Format, nil)
	logger := logging.GetLogger()

	if cmd.needsRoot() {
		if err := app.RequireRoot(cmd.name()); err != nil {
			fmt.Fprintln(stderr, err)
			return connerr.ExitError
		}
	}

	engine, err := nordconnect.NewEngine(cfg, logger)
	if err != nil {
		logger.Error("Failed to create engine", "error", err)
		return connerr.ExitError
	}

	err = cmd.run(ctx, engine, cfg, stdout, logger)
	switch {
	case err == nil:
	case connerr.KindOf(err) == connerr.KindUserAborted:
		logger.Info("Nothing to do", "reason", err)
		fmt.Fprintln(stderr, err)
	case errors.Is(err, context.Canceled):
		logger.Info("Interrupted")
	default:
		logger.Error("Command failed", "command", cmd.name(), "kind", connerr.KindOf(err).String(), "error", err)
		fmt.Fprintln(stderr, "nordconnect:", err)
	}
	return connerr.ExitCode(err)
}
