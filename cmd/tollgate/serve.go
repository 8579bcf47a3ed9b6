package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	tollgate "github.com/xraph/tollgate"
	"github.com/xraph/tollgate/api"
	audithook "github.com/xraph/tollgate/audit_hook"
	"github.com/xraph/tollgate/cache"
	"github.com/xraph/tollgate/config"
	"github.com/xraph/tollgate/fault"
	"github.com/xraph/tollgate/observability"
	"github.com/xraph/tollgate/payment"
	"github.com/xraph/tollgate/receiver"
	"github.com/xraph/tollgate/retry"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP gateway",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return serve(ctx, cfg, logger)
	},
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	s, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}

	gwOpts := []tollgate.Option{
		tollgate.WithLogger(logger),
		tollgate.WithRelayTimeout(cfg.RelayTimeout),
		tollgate.WithPaymentProvider(payment.NewHTTPProvider(cfg.BaseURL)),
		tollgate.WithReceiver(receiver.NewHTTPReceiver(cfg.BaseURL)),
		tollgate.WithPlugin(audithook.New(audithook.NewSlogRecorder(logger), audithook.WithLogger(logger))),
	}

	policy := retry.DefaultPolicy()
	policy.MaxAttempts = cfg.RetryMaxAttempts
	gwOpts = append(gwOpts, tollgate.WithRetryPolicy(policy))

	if cfg.RedisURL != "" {
		rcfg := cache.DefaultRedisConfig()
		rcfg.URL = cfg.RedisURL
		rc, err := cache.NewRedis(ctx, rcfg)
		if err != nil {
			return err
		}
		defer rc.Close()
		gwOpts = append(gwOpts, tollgate.WithIdempotencyCache(rc, tollgate.DefaultCacheTTL))
	}

	var apiOpts []api.Option
	if cfg.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		gwOpts = append(gwOpts, tollgate.WithPlugin(
			observability.NewMetricsExtension(observability.NewPrometheusFactory(reg)),
		))
		apiOpts = append(apiOpts, api.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}

	gw := tollgate.New(s, gwOpts...)
	if err := gw.Start(ctx); err != nil {
		return err
	}

	// The mock endpoints share one injector so the configured rates apply
	// to both the charge and delivery paths.
	inj := fault.NewRandom(fault.Defaults(cfg.MockPayFailureRate, cfg.MockRelayFailureRate))
	apiOpts = append(apiOpts,
		api.WithLogger(logger),
		api.WithRateLimits(cfg.RateLimitTelemetry, cfg.RateLimitRelay),
		api.WithMocks(payment.NewSimulator(inj), receiver.NewSimulator(inj)),
	)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.NewServer(gw, apiOpts...),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("tollgate listening", "addr", srv.Addr, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}

	return errors.Join(serveErr, gw.Stop())
}
