package fx

import (
	"context"

	"Poolfund/config"
	"Poolfund/internal/domain/distribution"
	"Poolfund/internal/domain/pool"
	"Poolfund/internal/domain/shared"
	"Poolfund/internal/infrastructure"
	"Poolfund/internal/logger"

	"go.uber.org/fx"
	"gorm.io/gorm"
)

var InfrastructureModule = fx.Module("infrastructure",
	fx.Provide(
		newDatabase,
		newTransactor,
		newPoolRepository,
		newInvestorRepository,
		newDistributionRepository,
		infrastructure.NewNotifier,
		infrastructure.NewDisburser,
	),
)

func newDatabase(lc fx.Lifecycle, cfg *config.Config) (*gorm.DB, error) {
	db, err := infrastructure.NewDb(cfg)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			logger.Info().Msg("closing database connection")
			return sqlDB.Close()
		},
	})
	return db, nil
}

func newTransactor(db *gorm.DB) shared.Transactor {
	return infrastructure.NewTransactor(db)
}

func newPoolRepository(db *gorm.DB) *infrastructure.PoolRepository {
	return &infrastructure.PoolRepository{DB: db}
}

func newInvestorRepository(db *gorm.DB) *infrastructure.InvestorRepository {
	return &infrastructure.InvestorRepository{DB: db}
}

func newDistributionRepository(db *gorm.DB) *infrastructure.DistributionRepository {
	return &infrastructure.DistributionRepository{DB: db}
}

var (
	_ pool.Notifier          = infrastructure.LogNotifier{}
	_ distribution.Disburser = infrastructure.LogDisburser{}
)
