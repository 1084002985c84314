package fx

import (
	"Poolfund/internal/domain/distribution"
	"Poolfund/internal/domain/investor"
	"Poolfund/internal/domain/pool"
	"Poolfund/internal/middleware"
	"Poolfund/internal/routes"

	"go.uber.org/fx"
	"gorm.io/gorm"
)

var RoutesModule = fx.Module("routes",
	fx.Provide(
		newHandler,
	),
)

func newHandler(
	poolSvc *pool.Service,
	investorSvc *investor.Service,
	distributionSvc *distribution.Service,
	jwtSvc *middleware.JwtService,
	db *gorm.DB,
) *routes.Handler {
	return &routes.Handler{
		PoolService:         poolSvc,
		InvestorService:     investorSvc,
		DistributionService: distributionSvc,
		JwtService:          jwtSvc,
		DB:                  db,
	}
}
