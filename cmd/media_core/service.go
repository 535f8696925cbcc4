package main

import (
	"log/slog"

	"github.com/arzzra/media_core/pkg/codec"
	"github.com/arzzra/media_core/pkg/manager_media"
	"github.com/arzzra/media_core/pkg/port_pool"
	"github.com/prometheus/client_golang/prometheus"
)

// service связывает пул портов, реестр кодеков и менеджер сессий
type service struct {
	pool     *port_pool.PortPool
	registry *codec.Registry
	manager  *manager_media.MediaManager
}

// newService собирает компоненты. reg == nil - метрики не регистрируются.
func newService(cfg appConfig, reg prometheus.Registerer, poolOpts ...port_pool.Option) (*service, error) {
	logger := slog.Default()

	opts := append([]port_pool.Option{
		port_pool.WithLogger(logger.With(slog.String("component", "port_pool"))),
		port_pool.WithMetrics(port_pool.NewMetrics(reg, "")),
	}, poolOpts...)
	pool, err := port_pool.New(cfg.Pool, opts...)
	if err != nil {
		return nil, err
	}

	registry, err := codec.NewRegistry(cfg.Codec,
		codec.WithLogger(logger.With(slog.String("component", "codec_registry"))))
	if err != nil {
		return nil, err
	}

	manager, err := manager_media.NewMediaManager(pool, registry, cfg.Manager,
		manager_media.WithLogger(logger.With(slog.String("component", "media_manager"))))
	if err != nil {
		return nil, err
	}

	return &service{pool: pool, registry: registry, manager: manager}, nil
}
