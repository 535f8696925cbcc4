package main

import (
	"fmt"

	"github.com/arzzra/media_core/pkg/codec"
	"github.com/arzzra/media_core/pkg/manager_media"
	"github.com/arzzra/media_core/pkg/media_sdp"
	"github.com/arzzra/media_core/pkg/port_pool"
	"github.com/spf13/viper"
)

// appConfig - конфигурация приложения, собранная из файла, env и флагов
type appConfig struct {
	Pool          port_pool.Config
	Codec         codec.Config
	Manager       manager_media.ManagerConfig
	MetricsListen string
}

func setDefaults() {
	viper.SetDefault("port_range.base", port_pool.DefaultBase)
	viper.SetDefault("port_range.ceiling", port_pool.DefaultCeiling)
	viper.SetDefault("port_range.strategy", "linear")
	viper.SetDefault("port_range.host", "")
	viper.SetDefault("port_range.max_random_probes", 0)
	viper.SetDefault("codec.h264_profile_level_id", codec.DefaultH264ProfileLevelID)
	viper.SetDefault("session.local_ip", "")
	viper.SetDefault("session.acquire_timeout", "2s")
	viper.SetDefault("session.ptime", media_sdp.DefaultPtime)
	viper.SetDefault("metrics.listen", ":9464")
	viper.SetDefault("log.level", "info")
}

// loadConfig читает конфигурацию из viper и проверяет ее.
// Нулевые значения флагов диапазона означают "взять из файла или по умолчанию".
func loadConfig() (appConfig, error) {
	strategy, err := port_pool.ParseStrategy(viper.GetString("port_range.strategy"))
	if err != nil {
		return appConfig{}, err
	}

	cfg := appConfig{
		Pool: port_pool.Config{
			Range: port_pool.Range{
				Base:    orDefault(viper.GetInt("port_range.base"), port_pool.DefaultBase),
				Ceiling: orDefault(viper.GetInt("port_range.ceiling"), port_pool.DefaultCeiling),
			},
			DefaultStrategy: strategy,
			Host:            viper.GetString("port_range.host"),
			MaxRandomProbes: viper.GetInt("port_range.max_random_probes"),
		},
		Codec: codec.Config{
			H264ProfileLevelID: viper.GetString("codec.h264_profile_level_id"),
		},
		Manager:       manager_media.DefaultManagerConfig(),
		MetricsListen: viper.GetString("metrics.listen"),
	}
	cfg.Manager.Strategy = strategy
	cfg.Manager.LocalIP = viper.GetString("session.local_ip")
	cfg.Manager.AcquireTimeout = viper.GetDuration("session.acquire_timeout")
	cfg.Manager.Ptime = viper.GetInt("session.ptime")

	if err := cfg.Pool.Validate(); err != nil {
		return appConfig{}, fmt.Errorf("port_range: %w", err)
	}
	if cfg.Codec.H264ProfileLevelID != "" {
		if err := cfg.Codec.Validate(); err != nil {
			return appConfig{}, fmt.Errorf("codec: %w", err)
		}
	}
	if err := cfg.Manager.Validate(); err != nil {
		return appConfig{}, fmt.Errorf("session: %w", err)
	}
	return cfg, nil
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
