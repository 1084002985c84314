package fx

import (
	"context"
	"errors"
	"net"
	"net/http"

	"Poolfund/config"
	"Poolfund/internal/logger"
	"Poolfund/internal/metrics"
	"Poolfund/internal/middleware"
	"Poolfund/internal/routes"
	"Poolfund/internal/validation"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

// ServerModule builds the gin engine and runs the HTTP server.
var ServerModule = fx.Module("server",
	fx.Provide(
		newRouter,
		newHTTPServer,
	),
	fx.Invoke(
		startServer,
	),
)

func newRouter(cfg *config.Config, handler *routes.Handler, limiter *middleware.RateLimiter) *gin.Engine {
	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	validation.Install(validation.New())

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(metrics.GinMiddleware())
	router.Use(middleware.CORSMiddleware(cfg.CORS.AllowedOrigins))

	routes.Register(router, handler, limiter)
	return router
}

func newHTTPServer(cfg *config.Config, router *gin.Engine) *http.Server {
	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}

func startServer(lc fx.Lifecycle, cfg *config.Config, server *http.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", server.Addr)
			if err != nil {
				return err
			}
			logger.Info().
				Str("address", server.Addr).
				Str("environment", cfg.App.Environment).
				Msg("server starting")

			go func() {
				if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error().Err(err).Msg("server stopped unexpectedly")
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info().Msg("server stopping")
			shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	})
}
