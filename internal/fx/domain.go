package fx

import (
	"Poolfund/config"
	"Poolfund/internal/domain/distribution"
	"Poolfund/internal/domain/investor"
	"Poolfund/internal/domain/pool"
	"Poolfund/internal/domain/shared"
	"Poolfund/internal/infrastructure"

	"go.uber.org/fx"
)

// DomainModule provides the pool, investor and distribution services.
var DomainModule = fx.Module("domain",
	fx.Provide(
		newPoolService,
		newInvestorService,
		newProcessor,
		newDistributionService,
	),
)

func newPoolService(
	repo *infrastructure.PoolRepository,
	tx shared.Transactor,
	notifier pool.Notifier,
) *pool.Service {
	return pool.NewService(repo, tx, notifier)
}

func newInvestorService(
	repo *infrastructure.InvestorRepository,
	pools *infrastructure.PoolRepository,
	tx shared.Transactor,
	notifier pool.Notifier,
) *investor.Service {
	return investor.NewService(repo, pools, tx, notifier)
}

func newProcessor(
	cfg *config.Config,
	repo *infrastructure.DistributionRepository,
	pools *infrastructure.PoolRepository,
	tx shared.Transactor,
	disburser distribution.Disburser,
	notifier pool.Notifier,
) *distribution.Processor {
	return distribution.NewProcessor(repo, pools, tx, disburser, notifier, distribution.ProcessorConfig{
		Concurrency:   cfg.Payout.Concurrency,
		LeaseTimeout:  cfg.Payout.LeaseTimeout,
		PayoutTimeout: cfg.Payout.Timeout,
	})
}

func newDistributionService(
	repo *infrastructure.DistributionRepository,
	pools *infrastructure.PoolRepository,
	investors *infrastructure.InvestorRepository,
	tx shared.Transactor,
	processor *distribution.Processor,
	notifier pool.Notifier,
) *distribution.Service {
	return distribution.NewService(repo, pools, investors, tx, processor, notifier)
}
