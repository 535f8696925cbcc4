package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "media_core",
		Short: "media_core allocates RTP ports and negotiates codecs",
		Long: `media_core - ядро медиа сервера: пул UDP портов для RTP/RTCP,
реестр кодеков и согласование медиа строк SDP.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(viper.GetString("log.level"))
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.media_core.yaml)")
	flags.Int("port-base", 0, "first port of the RTP range")
	flags.Int("port-ceiling", 0, "last port of the RTP range")
	flags.String("strategy", "", "port allocation strategy: linear or random")
	flags.String("log-level", "", "log level: debug, info, warn, error")

	_ = viper.BindPFlag("port_range.base", flags.Lookup("port-base"))
	_ = viper.BindPFlag("port_range.ceiling", flags.Lookup("port-ceiling"))
	_ = viper.BindPFlag("port_range.strategy", flags.Lookup("strategy"))
	_ = viper.BindPFlag("log.level", flags.Lookup("log-level"))

	root.AddCommand(newServeCmd(), newCodecsCmd(), newPortsCmd(), newStressCmd())
	return root
}

// Execute запускает корневую команду
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".media_core")
	}

	viper.SetEnvPrefix("MEDIA_CORE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// setupLogging настраивает slog по умолчанию для всех пакетов
func setupLogging(level string) error {
	var lvl slog.Level
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return fmt.Errorf("некорректный уровень логирования %q: %w", level, err)
		}
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
	return nil
}
