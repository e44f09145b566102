package main

import (
	"time"

	"drone-fleet/internal/jwt"
	"drone-fleet/internal/middleware"
)

func (a *AppContext) setupRoutes() {
	r := a.Router
	window := time.Duration(a.Config.RateLimiter.WindowSeconds) * time.Second

	// ── Global Middleware (outermost → innermost) ──
	r.Use(middleware.Logger())                         // 1. Request logging
	r.Use(middleware.Recovery())                       // 2. Panic recovery
	r.Use(middleware.RateLimit(a.RateLimiter, window)) // 3. Per-IP rate limiting
	r.Use(middleware.Auth(a.JWTService))               // 4. JWT auth (skips /health, /auth/token, /ws/*)

	// ── Health (no auth) ──
	r.GET("/health", a.healthCheck)

	// ── Auth ──
	r.POST("/auth/token", a.AuthHandler.IssueToken)

	// ── Websockets ──
	ws := r.Group("/ws")
	{
		// A drone connection holds its bulkhead slot until it closes.
		ws.GET("/drone", middleware.Bulkhead("drone", a.Config.Bulkhead.DronePool), a.DroneSocket.Connect)
		ws.GET("/dashboard", a.DashboardSocket.Stream)
	}

	breaker := middleware.CircuitBreaker(a.Config.Breaker.Threshold, a.Config.Breaker.Cooldown)

	// ── Reads (role: operator or viewer) ──
	reads := r.Group("")
	reads.Use(middleware.RoleGuard(jwt.RoleOperator, jwt.RoleViewer))
	reads.Use(breaker)
	{
		reads.GET("/drones", a.DroneHandler.ListDrones)
		reads.GET("/drones/:id", a.DroneHandler.GetDrone)
		reads.GET("/drones/:id/location", a.DroneHandler.GetDroneLocation)
		reads.GET("/missions", a.MissionHandler.ListMissions)
		reads.GET("/missions/:id", a.MissionHandler.GetMission)
		reads.GET("/missions/:id/report", a.ReportHandler.GetMissionReport)
	}

	// ── Mutations (role: operator) ──
	mutations := r.Group("")
	mutations.Use(middleware.RoleGuard(jwt.RoleOperator))
	mutations.Use(middleware.Bulkhead("mutation", a.Config.Bulkhead.MutationPool))
	mutations.Use(breaker)
	{
		mutations.POST("/drones/:id/flight-permit", a.DroneHandler.RequestFlightPermit)
		mutations.POST("/missions", middleware.Idempotency(a.IdempotencyStore), a.MissionHandler.CreateMission)
	}
}
