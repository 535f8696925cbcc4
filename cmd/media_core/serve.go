package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the session control API and metrics endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().String("listen", ":9464", "address of the control API and /metrics")
	cmd.Flags().String("local-ip", "", "IP announced in SDP c= lines")
	_ = viper.BindPFlag("metrics.listen", cmd.Flags().Lookup("listen"))
	_ = viper.BindPFlag("session.local_ip", cmd.Flags().Lookup("local-ip"))
	return cmd
}

func serve(ctx context.Context, cfg appConfig) error {
	logger := slog.Default().With(slog.String("component", "serve"))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	svc, err := newService(cfg, reg)
	if err != nil {
		return err
	}
	defer svc.manager.Shutdown()

	gin.SetMode(gin.ReleaseMode)
	router := newRouter(svc, cfg.Manager.LocalIP)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))

	server := &http.Server{
		Addr:              cfg.MetricsListen,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("сервер запущен",
			slog.String("listen", cfg.MetricsListen),
			slog.String("range", cfg.Pool.Range.String()),
			slog.String("strategy", svc.pool.DefaultStrategy().String()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("остановка сервера")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
