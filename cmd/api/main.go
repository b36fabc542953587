package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/hamed0406/endpointresolver/internal/app"
	"github.com/hamed0406/endpointresolver/internal/config"
	"github.com/hamed0406/endpointresolver/internal/logging"
	"github.com/hamed0406/endpointresolver/internal/observability"
)

var version = "dev"

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:          "resolver-api",
		Short:        "Endpoint resolver with a debug HTTP API",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			file, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(v, file)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().String("config", "", "config file path")
	config.BindFlags(cmd, v)
	return cmd
}

func run(ctx context.Context, cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := logging.NewLogger(logging.Options{
		Dir:    cfg.Observability.LogDir,
		Level:  cfg.Observability.LogLevel,
		Stdout: cfg.Observability.LogStdout,
	})
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.Observability.OTLPEndpoint, cfg.Observability.ServiceName, version)
	if err != nil {
		logger.Warn("tracing_disabled", zap.Error(err))
		shutdownTracing = func(context.Context) error { return nil }
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("app_close_error", zap.Error(err))
		}
	}()

	for _, c := range a.Resolver.Candidates(ctx) {
		logger.Info("candidate", zap.String("kind", string(c.Kind)), zap.String("url", c.URL), zap.Int("priority", c.Priority))
	}
	logger.Info("endpoint_ready", zap.String("url", a.Warm(ctx)))

	go a.Watchdog.Run(ctx)

	srv := &http.Server{
		Addr:              cfg.API.Addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info("api_listen", zap.String("addr", cfg.API.Addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("api_shutdown")
	}

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Warn("api_shutdown_error", zap.Error(err))
	}
	return shutdownTracing(sctx)
}
