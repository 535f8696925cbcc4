package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arzzra/media_core/pkg/port_pool"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// stressReport - итог нагрузочного прогона пула
type stressReport struct {
	RunID      string
	Strategy   port_pool.Strategy
	Acquired   int64
	Exhausted  int64
	Duplicates int64
	Duration   time.Duration
}

func newStressCmd() *cobra.Command {
	var (
		workers    int
		iterations int
		hold       time.Duration
	)
	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Hammer the port pool with concurrent acquire/release cycles",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			pool, err := port_pool.New(cfg.Pool)
			if err != nil {
				return err
			}
			report, err := runStress(cmd.Context(), pool, workers, iterations, hold)
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), report)
			if report.Duplicates > 0 {
				return fmt.Errorf("обнаружено %d повторных выдач порта", report.Duplicates)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 8, "number of concurrent workers")
	cmd.Flags().IntVar(&iterations, "iterations", 1000, "acquire/release cycles per worker")
	cmd.Flags().DurationVar(&hold, "hold", 0, "how long each pair is held before release")
	return cmd
}

// runStress выделяет и освобождает пары портов стратегией пула по
// умолчанию из нескольких горутин и проверяет, что один порт не выдан
// двум держателям одновременно.
func runStress(ctx context.Context, pool *port_pool.PortPool, workers, iterations int, hold time.Duration) (stressReport, error) {
	if workers <= 0 || iterations <= 0 {
		return stressReport{}, fmt.Errorf("workers и iterations должны быть положительными")
	}

	strategy := pool.DefaultStrategy()
	report := stressReport{RunID: uuid.New().String(), Strategy: strategy}
	logger := slog.Default().With(
		slog.String("component", "stress"),
		slog.String("run_id", report.RunID))
	logger.Info("нагрузочный прогон запущен",
		slog.Int("workers", workers),
		slog.Int("iterations", iterations),
		slog.String("strategy", strategy.String()))

	var (
		held       sync.Map
		acquired   atomic.Int64
		exhausted  atomic.Int64
		duplicates atomic.Int64
	)
	start := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for i := 0; i < iterations; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				rtpPort, rtcpPort, err := pool.AcquirePairContext(ctx, strategy)
				if errors.Is(err, port_pool.ErrPoolExhausted) {
					exhausted.Add(1)
					continue
				}
				if err != nil {
					return err
				}
				acquired.Add(1)

				for _, port := range []int{rtpPort, rtcpPort} {
					if _, loaded := held.LoadOrStore(port, struct{}{}); loaded {
						duplicates.Add(1)
						logger.Error("порт выдан повторно", slog.Int("port", port))
					}
				}
				if hold > 0 {
					time.Sleep(hold)
				}
				held.Delete(rtpPort)
				held.Delete(rtcpPort)
				pool.ReleasePair(rtpPort)
			}
			return nil
		})
	}
	err := g.Wait()

	report.Acquired = acquired.Load()
	report.Exhausted = exhausted.Load()
	report.Duplicates = duplicates.Load()
	report.Duration = time.Since(start)
	logger.Info("нагрузочный прогон завершен",
		slog.Int64("acquired", report.Acquired),
		slog.Int64("exhausted", report.Exhausted),
		slog.Int64("duplicates", report.Duplicates),
		slog.Duration("duration", report.Duration))
	return report, err
}

func printReport(w io.Writer, r stressReport) {
	fmt.Fprintf(w, "run:        %s\n", r.RunID)
	fmt.Fprintf(w, "strategy:   %s\n", r.Strategy)
	fmt.Fprintf(w, "acquired:   %d\n", r.Acquired)
	fmt.Fprintf(w, "exhausted:  %d\n", r.Exhausted)
	fmt.Fprintf(w, "duplicates: %d\n", r.Duplicates)
	fmt.Fprintf(w, "duration:   %s\n", r.Duration)
}
