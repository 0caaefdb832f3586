package main

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/familyshare/familyshare/internal/cache"
	"github.com/familyshare/familyshare/internal/config"
	"github.com/familyshare/familyshare/internal/handler"
	"github.com/familyshare/familyshare/internal/metrics"
	"github.com/familyshare/familyshare/internal/middleware"
	"github.com/familyshare/familyshare/internal/model"
	"github.com/familyshare/familyshare/internal/service"
	"github.com/familyshare/familyshare/internal/session"
	"github.com/familyshare/familyshare/internal/store"
)

// services groups the four workflow services sharing one store.
type services struct {
	circles  *service.CircleService
	checkIns *service.CheckInService
	alerts   *service.AlertService
	devices  *service.DeviceService
}

func newServices(st store.Store, opts ...service.Option) services {
	return services{
		circles:  service.NewCircleService(st, opts...),
		checkIns: service.NewCheckInService(st, opts...),
		alerts:   service.NewAlertService(st, opts...),
		devices:  service.NewDeviceService(st, opts...),
	}
}

// routerDeps holds everything setupRouter wires. limiter is nil when Redis
// is not configured.
type routerDeps struct {
	cfg        *config.Config
	logger     *slog.Logger
	services   services
	pseudonyms handler.Pseudonymizer
	sessions   *session.Tracker
	verifier   middleware.TokenVerifier
	limiter    middleware.Limiter
	metrics    *metrics.InMemoryRecorder
	health     []handler.DependencyCheck
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(d routerDeps) *chi.Mux {
	cfg, logger := d.cfg, d.logger

	h := handler.New()
	healthHandler := handler.NewHealthHandler(logger, d.health...)
	metricsHandler := handler.NewMetricsHandler(d.metrics)
	circles := handler.NewCircleHandler(d.services.circles, logger, d.metrics)
	checkIns := handler.NewCheckInHandler(d.services.checkIns, logger)
	alerts := handler.NewAlertHandler(d.services.alerts, d.pseudonyms, logger)
	devices := handler.NewDeviceHandler(d.services.devices, logger)
	me := handler.NewSessionHandler(d.sessions, logger)

	securityCfg := middleware.DefaultSecurityConfig()
	securityCfg.IsDevelopment = cfg.IsDevelopment()
	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.GetCORSAllowedOrigins()

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Security(securityCfg))
	r.Use(middleware.CORS(corsCfg))
	r.Use(middleware.MaxBodySize(cfg.MaxRequestBodySize))

	// Health and metrics (no auth required)
	r.Get("/healthz", healthHandler.Healthz)
	r.Get("/readyz", healthHandler.Readyz)
	r.Get("/metrics", metricsHandler.Metrics)

	authCfg := middleware.AuthConfig{
		Logger:      logger,
		Verifier:    d.verifier,
		Revocations: d.sessions,
	}

	rateLimitCfg := middleware.RateLimitConfig{
		Logger:  logger,
		Limiter: d.limiter,
		Enabled: cfg.RateLimitAPIEnabled,
	}
	checkInLimit := middleware.RateLimitUser(rateLimitCfg, cache.ScopeCheckIn,
		cache.PerHour(cfg.RateLimitCheckInsPerHour), hourlyBurst(cfg.RateLimitCheckInsPerHour))
	sightingLimit := middleware.RateLimitUser(rateLimitCfg, cache.ScopeSighting,
		cache.PerHour(cfg.RateLimitSightingsPerHour), hourlyBurst(cfg.RateLimitSightingsPerHour))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimitIP(rateLimitCfg, cfg.RateLimitIPRPS, cfg.RateLimitIPBurst))
		r.Use(middleware.Auth(authCfg))
		r.Use(middleware.RateLimitUser(rateLimitCfg, cache.ScopeAPI, float64(cfg.RateLimitAPIRPS), cfg.RateLimitAPIBurst))

		r.Route("/circles", func(r chi.Router) {
			r.Get("/", circles.List)
			r.Post("/", circles.Create)
			r.Get("/{id}", circles.Get)
			r.Delete("/{id}", circles.Disband)
			r.Post("/{id}/members", circles.AddMember)
			r.Delete("/{id}/members/{userID}", circles.RemoveMember)
			r.Get("/{id}/members/{userID}/location", circles.MemberLocation)
			r.Put("/{id}/sharing", circles.SetSharing)
		})

		r.Route("/check-ins", func(r chi.Router) {
			r.Get("/", checkIns.List)
			r.With(checkInLimit).Post("/", checkIns.Request)
			r.Get("/{id}", checkIns.Get)
			r.Post("/{id}/respond", checkIns.Respond)
		})

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", alerts.List)
			r.Post("/", alerts.Post)
			r.Get("/{id}", alerts.Get)
			r.Post("/{id}/resolve", alerts.Resolve)
			r.Post("/{id}/flag", alerts.Flag)
			r.Post("/{id}/reinstate", alerts.Reinstate)
			r.Get("/{id}/sightings", alerts.ListSightings)
			r.With(sightingLimit).Post("/{id}/sightings", alerts.ReportSighting)
		})

		r.With(middleware.RequireRole(model.RoleModerator)).Get("/moderation/alerts", alerts.ModerationQueue)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", devices.List)
			r.Post("/", devices.Invite)
			r.Get("/{id}", devices.Get)
			r.Post("/{id}/consent", devices.Consent)
			r.Post("/{id}/revoke", devices.Revoke)
			r.Put("/{id}/limits", devices.UpdateLimits)
			r.Put("/{id}/location", devices.ReportLocation)
		})

		r.Put("/me/location", circles.UpdateMyLocation)
		r.Post("/me/sign-out", me.SignOut)
	})

	// 404 and 405 handlers
	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	return r
}

// hourlyBurst lets a user spend a quarter of the hourly allowance at once.
func hourlyBurst(perHour int) int {
	if b := perHour / 4; b > 1 {
		return b
	}
	return 1
}
