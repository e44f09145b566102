package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	goredis "github.com/redis/go-redis/v9"

	"drone-fleet/config"
	"drone-fleet/internal/auth"
	"drone-fleet/internal/drone"
	"drone-fleet/internal/fleet"
	"drone-fleet/internal/jwt"
	"drone-fleet/internal/mission"
	"drone-fleet/internal/redis"
	"drone-fleet/internal/repo/postgres"
	"drone-fleet/internal/report"
	"drone-fleet/internal/storage"
	"drone-fleet/internal/transport"
)

type AppContext struct {
	DB     *sqlx.DB
	Config *config.Config
	Redis  *goredis.Client
	Router *gin.Engine
	Logger *slog.Logger

	// Infrastructure
	JWTService       *jwt.Service
	DroneCache       *redis.DroneLocationCache
	IdempotencyStore *redis.IdempotencyStore
	RateLimiter      *redis.RateLimiter

	// Fleet coordination
	Registry *fleet.Registry
	Poller   *fleet.Poller

	AuthHandler     *auth.Handler
	DroneHandler    *drone.Handler
	MissionHandler  *mission.Handler
	ReportHandler   *report.Handler
	DroneSocket     *transport.DroneHandler
	DashboardSocket *transport.DashboardHandler
}

// wireApp connects to Postgres and Redis, migrates the schema and builds
// every component. Sessions started by the drone socket run on ctx.
func wireApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*AppContext, error) {
	// ── Postgres ──
	pool := postgres.DefaultPoolConfig()
	pool.MaxOpenConns = cfg.Postgres.MaxOpenConns
	pool.MaxIdleConns = cfg.Postgres.MaxIdleConns
	db, err := postgres.Connect(ctx, cfg.Postgres.DSN(), pool, cfg.Postgres.ConnectTimeout)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}

	if err := postgres.RunMigrationsUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	// ── Redis ──
	var rdb *goredis.Client
	if cfg.Redis.URL != "" {
		opts, err := goredis.ParseURL(cfg.Redis.URL)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("redis parse url: %w", err)
		}
		rdb = goredis.NewClient(opts)
	} else {
		rdb = goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		db.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}

	// ── Infrastructure ──
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.ExpiryHours)
	droneCache := redis.NewDroneLocationCache(rdb, cfg.Fleet.LocationCacheTTLSec)
	idempotencyStore := redis.NewIdempotencyStore(rdb, cfg.Fleet.IdempotencyTTLSec)
	rateLimiter := redis.NewRateLimiter(rdb, cfg.RateLimiter.MaxRequests, cfg.RateLimiter.WindowSeconds)

	// ── Repositories ──
	droneRepo := drone.NewRepository()
	missionRepo := mission.NewRepository()
	reportRepo := report.NewRepository()
	store := storage.New(db, droneRepo, missionRepo, reportRepo)

	// ── Services ──
	droneService := drone.NewDroneService(droneRepo, db, droneCache)
	missionService := mission.NewMissionService(missionRepo, droneRepo, db)
	reportService := report.NewReportService(store, logger)
	authService := auth.NewAuthService(jwtService)

	// ── Fleet ──
	dispatched := fleet.NewDispatchedSet()
	registry := fleet.NewRegistry(store, reportService, droneCache, dispatched, fleet.SessionConfig{
		ProximityInterval:  cfg.Fleet.ProximityInterval,
		ProximityRadiusDeg: cfg.Fleet.ProximityRadiusDeg,
	}, logger)
	poller := fleet.NewPoller(store, registry, dispatched, cfg.Fleet.PollInterval, cfg.Fleet.PollStartupDelay, logger)

	// ── Handlers ──
	socketCfg := transport.Config{WriteWait: cfg.Fleet.WriteWait, PongWait: cfg.Fleet.PongWait}

	return &AppContext{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
		Router: gin.New(),
		Logger: logger,

		JWTService:       jwtService,
		DroneCache:       droneCache,
		IdempotencyStore: idempotencyStore,
		RateLimiter:      rateLimiter,

		Registry: registry,
		Poller:   poller,

		AuthHandler:     auth.NewHandler(authService),
		DroneHandler:    drone.NewHandler(droneService, registry),
		MissionHandler:  mission.NewHandler(missionService),
		ReportHandler:   report.NewHandler(reportService),
		DroneSocket:     transport.NewDroneHandler(ctx, registry, socketCfg, logger),
		DashboardSocket: transport.NewDashboardHandler(droneService, cfg.Fleet.DashboardInterval, socketCfg, logger),
	}, nil
}

func (a *AppContext) Close() {
	a.Registry.Close()
	a.DB.Close()
	a.Redis.Close()
}

func (a *AppContext) healthCheck(c *gin.Context) {
	ctx := c.Request.Context()
	checks := map[string]string{}
	healthy := true

	if err := a.DB.PingContext(ctx); err != nil {
		checks["postgres"] = err.Error()
		healthy = false
	} else {
		checks["postgres"] = "ok"
	}

	version, dirty, err := postgres.SchemaVersion(ctx, a.DB)
	switch {
	case err != nil:
		checks["schema"] = err.Error()
		healthy = false
	case dirty:
		checks["schema"] = fmt.Sprintf("version %d is dirty", version)
		healthy = false
	default:
		checks["schema"] = fmt.Sprintf("version %d", version)
	}

	if err := a.Redis.Ping(ctx).Err(); err != nil {
		checks["redis"] = err.Error()
		healthy = false
	} else {
		checks["redis"] = "ok"
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status":           checks,
		"connected_drones": a.Registry.Len(),
		"postgres_pool":    postgres.GetPoolMetrics(a.DB),
	})
}
