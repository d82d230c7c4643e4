package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dalemusser/agentcanvas/internal/app/bootstrap"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// runFunc is the body of a sync command, given connected services.
type runFunc func(ctx context.Context, svc *bootstrap.Services) error

// withServices connects to the database, brings the schema up to date and
// hands the services to fn. Interrupts cancel the context.
func withServices(cmd *cobra.Command, opts *RootOptions, fn runFunc) error {
	logger := newLogger(opts.Verbose)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	appCfg := opts.appConfig()
	deps, err := bootstrap.Connect(ctx, appCfg, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "connect to database", err)
	}
	defer func() {
		deps.Services.Stop()
		if err := deps.MongoClient.Disconnect(context.Background()); err != nil {
			logger.Warn("mongo disconnect failed", zap.Error(err))
		}
	}()

	if err := bootstrap.EnsureSchema(ctx, nil, appCfg, deps, logger); err != nil {
		return WrapExitError(ExitCommandError, "prepare schema", err)
	}
	if deps.Services.Syncer == nil {
		return NewExitError(ExitCommandError, "identity provider is not configured")
	}
	return fn(ctx, deps.Services)
}

// newLogger logs to stderr so stdout carries only the JSON result.
func newLogger(verbose bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
