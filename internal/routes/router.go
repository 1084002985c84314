package routes

import (
	"Poolfund/internal/metrics"
	"Poolfund/internal/middleware"

	"github.com/gin-gonic/gin"
)

// Register mounts the public probes and the authenticated /api group.
func Register(router *gin.Engine, h *Handler, limiter *middleware.RateLimiter) {
	router.GET("/health", h.Health)
	router.GET("/metrics", metrics.Handler())

	api := router.Group("/api")
	api.Use(middleware.AuthMiddleware(h.JwtService))
	api.Use(middleware.RateLimit(limiter))
	{
		pools := api.Group("/pools")
		{
			pools.POST("", h.CreatePool)
			pools.GET("", h.ListPools)
			pools.GET("/:id", h.GetPool)
			pools.PATCH("/:id", h.UpdatePool)
			pools.DELETE("/:id", h.CancelPool)
			pools.GET("/:id/events", h.ListPoolEvents)
			pools.GET("/:id/refunds", h.ListRefundObligations)
			pools.GET("/:id/investors", h.ListPoolInvestors)
			pools.POST("/:id/invest", h.InvestInPool)
			pools.POST("/:id/distributions", h.CreateDistribution)
			pools.GET("/:id/distributions", h.ListDistributions)
		}

		api.DELETE("/investors/:investorId", h.CancelInvestment)
		api.GET("/me/investments", h.ListMyInvestments)

		distributions := api.Group("/distributions")
		{
			distributions.GET("/:distributionId", h.GetDistribution)
			distributions.POST("/:distributionId/process", h.ProcessDistribution)
		}
	}
}
