package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/arzzra/media_core/pkg/port_pool"
	"github.com/spf13/cobra"
)

func newPortsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports PORT...",
		Short: "Check whether ports in the configured range can be bound",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			pool, err := port_pool.New(cfg.Pool)
			if err != nil {
				return err
			}
			return checkPorts(cmd.OutOrStdout(), pool, args)
		},
	}
}

func checkPorts(w io.Writer, pool *port_pool.PortPool, args []string) error {
	for _, arg := range args {
		port, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("некорректный порт %q: %w", arg, err)
		}
		switch {
		case !pool.Range().Contains(port):
			fmt.Fprintf(w, "%d\tout of range %s\n", port, pool.Range())
		case pool.IsAvailable(port):
			fmt.Fprintf(w, "%d\tavailable\n", port)
		default:
			fmt.Fprintf(w, "%d\tbusy\n", port)
		}
	}
	return nil
}
