package http

import (
	"context"
	"log/slog"
	"time"

	"github.com/allwinromario/AirQ/internal/auth"
	"github.com/allwinromario/AirQ/internal/cache"
	"github.com/allwinromario/AirQ/internal/config"
	"github.com/allwinromario/AirQ/internal/domain/user"
	"github.com/allwinromario/AirQ/internal/http/handlers"
	"github.com/allwinromario/AirQ/internal/http/middlewares"
	"github.com/allwinromario/AirQ/internal/observability"
	"github.com/allwinromario/AirQ/internal/queue/redisclient"
	"github.com/allwinromario/AirQ/internal/repo/postgres"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

func NewRouter(cfg config.Config, log *slog.Logger, pool *pgxpool.Pool, rdb *redisclient.Client) *gin.Engine {
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// metrics registry first so the DB layer can record from request one
	reg := prometheus.NewRegistry()
	prom := observability.NewProm(reg)

	// middleware

	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(log))
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(cfg.CORSAllowedOrigins))
	r.Use(middlewares.MaxBodyBytes(cfg.MaxBodyBytes))
	r.Use(middlewares.RequireJSON())
	r.Use(otelgin.Middleware("airq-api"))
	r.Use(prom.GinHandleMiddleware())

	// the per-user half of this key only works after RequireAuth, so the
	// general limiter sits on the authenticated groups, not globally
	generalLimiter := middlewares.NewRateLimiter(cfg.RateLimitPerMin, time.Minute)
	generalLimit := generalLimiter.RateLimiterMiddleware(middlewares.KeyByUserOrIP)

	// health
	ping := func() error {
		if pool == nil {
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := pool.Ping(ctx); err != nil {
			return err
		}

		if rdb != nil {
			return rdb.Ping(ctx)
		}

		return nil
	}

	h := handlers.NewHealthHandler(ping)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	// wire up repositories
	usersRepo := postgres.NewUsersRepo(pool)
	refreshRepo := postgres.NewRefreshTokensRepo(pool)
	gridsRepo := postgres.NewGridsRepo(pool, prom)
	jobsRepo := postgres.NewJobsRepo(pool, prom)

	jwtManager := auth.NewManager(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL)
	authMw := middlewares.NewAuthMiddleware(jwtManager)

	statsCache := cache.New(5 * time.Minute)

	var (
		notifier    handlers.JobNotifier
		remoteStats handlers.RemoteCache
	)

	if rdb != nil {
		notifier = rdb
		remoteStats = rdb
	}

	// wire up handlers
	authHandler := handlers.NewAuthHandler(usersRepo, usersRepo, jwtManager, refreshRepo, cfg)
	gridsHandler := handlers.NewGridsHandler(gridsRepo, statsCache, remoteStats)

	jobsHandler := handlers.NewJobsHandler(gridsRepo, jobsRepo, notifier, log)
	adminJobsHandler := handlers.NewAdminJobsHandler(jobsRepo, log)

	api := r.Group("/api")

	// auth endpoints get a tighter, per-IP limit
	authLimiter := middlewares.NewRateLimiter(cfg.AuthRateLimitPerMin, time.Minute)

	authGroup := api.Group("/auth")
	authGroup.Use(authLimiter.RateLimiterMiddleware(middlewares.KeyByIP))
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)
		authGroup.POST("/logout", authHandler.Logout)
		authGroup.GET("/me", authMw.RequireAuth(), authHandler.Me)
	}

	grids := api.Group("/grids")
	grids.Use(authMw.RequireAuth(), generalLimit)
	{
		grids.POST("", gridsHandler.Create)
		grids.GET("", gridsHandler.List)
		grids.GET("/:id", gridsHandler.GetByID)
		grids.GET("/:id/stats", gridsHandler.Stats)
		grids.GET("/:id/histogram", gridsHandler.HistogramView)
		grids.GET("/:id/export", gridsHandler.Export)
		grids.DELETE("/:id", gridsHandler.Delete)
		grids.POST("/:id/downscale", jobsHandler.SubmitDownscale)
	}

	api.GET("/jobs/:id", authMw.RequireAuth(), generalLimit, jobsHandler.GetByID)

	admin := api.Group("/admin")
	admin.Use(authMw.RequireAuth(), authMw.RequireRole(user.RoleAdmin), generalLimit)
	{
		admin.GET("/jobs", adminJobsHandler.List)
		admin.GET("/jobs/:id", adminJobsHandler.GetByID)
		admin.POST("/jobs/:id/retry", adminJobsHandler.Retry)
		admin.POST("/jobs/retry-failed", adminJobsHandler.RetryFailed)
	}

	return r
}
