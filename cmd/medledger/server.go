package main

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/ehr/medledger/internal/config"
	"github.com/ehr/medledger/internal/domain/dispensing"
	"github.com/ehr/medledger/internal/domain/indent"
	"github.com/ehr/medledger/internal/domain/inventory"
	"github.com/ehr/medledger/internal/domain/ledger"
	"github.com/ehr/medledger/internal/platform/auth"
	"github.com/ehr/medledger/internal/platform/db"
	"github.com/ehr/medledger/internal/platform/middleware"
)

const version = "0.1.0"

func newServer(cfg *config.Config, st *storage, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.Secure())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader, "X-Department"},
	}))

	// Auth middleware
	jwtCfg := auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		JWKSURL:    cfg.AuthJWKSURL,
		SigningKey: []byte(cfg.AuthSigningKey),
		Skipper:    auth.AuthSkipper,
	}
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(jwtCfg))
	} else {
		e.Use(auth.JWTMiddleware(jwtCfg))
	}

	e.Use(middleware.Audit(logger))

	apiV1 := e.Group("/api/v1")
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))
	apiV1.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	if st.pool != nil {
		apiV1.Use(db.DepartmentMiddleware(st.pool, cfg.DefaultDepartment))
	}

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(st.health))

	// Domain
	locker := inventory.NewKeyLocker(cfg.LockTimeout)
	proc := dispensing.NewProcessor(dispensing.Deps{
		Store:         st.store,
		Locker:        locker,
		Ledger:        st.ledger,
		Orders:        st.orders,
		Prescriptions: st.prescriptions,
		Catalog:       st.catalog,
		Tx:            st.tx,
		Logger:        logger,
	})

	inventory.NewHandler(inventory.NewService(st.store, st.catalog)).RegisterRoutes(apiV1)
	ledger.NewHandler(ledger.NewService(st.ledger, st.store, st.catalog)).RegisterRoutes(apiV1)
	indent.NewHandler(indent.NewGenerator(st.catalog, st.store)).RegisterRoutes(apiV1)
	dispensing.NewHandler(proc).RegisterRoutes(apiV1)

	return e
}
