package fx

import (
	"context"
	"sync"
	"time"

	"Poolfund/config"
	"Poolfund/internal/domain/distribution"
	"Poolfund/internal/logger"

	"go.uber.org/fx"
)

// WorkerModule runs the payout sweeper in the background.
var WorkerModule = fx.Module("worker",
	fx.Invoke(
		startSweeper,
	),
)

func startSweeper(lc fx.Lifecycle, cfg *config.Config, processor *distribution.Processor) {
	var (
		cancel context.CancelFunc
		wg     sync.WaitGroup
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			wg.Add(1)
			go func() {
				defer wg.Done()
				runSweeper(ctx, processor, cfg.Payout.SweepInterval)
			}()
			logger.Info().Dur("interval", cfg.Payout.SweepInterval).Msg("payout sweeper started")
			return nil
		},
		OnStop: func(context.Context) error {
			if cancel != nil {
				cancel()
			}
			wg.Wait()
			logger.Info().Msg("payout sweeper stopped")
			return nil
		},
	})
}

func runSweeper(ctx context.Context, processor *distribution.Processor, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := processor.Sweep(ctx)
			if err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Msg("payout sweep failed")
				continue
			}
			if n > 0 {
				logger.Info().Int("distributions", n).Msg("payout sweep finished")
			}
		}
	}
}
