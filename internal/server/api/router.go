package api

import (
	"fmt"
	"net/http"

	"merkaz/internal/server/auth"
	"merkaz/internal/server/config"
	"merkaz/internal/server/metrics"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// SetupRouter creates and configures the echo router with all routes and middleware.
func SetupRouter(handler *Handler, cfg *config.Config, issuer *auth.Issuer, m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = newRequestValidator()

	// Global middleware
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
	}))
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(Instrument(m))
	e.Use(RequestLogger())
	e.Use(Authenticate(issuer))
	if cfg.MaxUploadSize > 0 {
		e.Use(middleware.BodyLimit(fmt.Sprintf("%dB", cfg.MaxUploadSize)))
	}

	// Rate limiter on upload endpoint only
	uploadLimiter := NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	e.Server.RegisterOnShutdown(uploadLimiter.Stop)

	// Health & metrics
	e.GET("/health", handler.HandleHealth)
	e.GET("/metrics", echo.WrapHandler(m.Handler()))

	// Submitters
	e.POST("/upload", handler.HandleUpload, RequireLogin, uploadLimiter.Middleware())
	e.GET("/my_uploads", handler.HandleMyUploads, RequireLogin)
	e.POST("/heartbeat", handler.HandleHeartbeat, RequireLogin)
	e.POST("/logout", handler.HandleLogout, RequireLogin)

	// Review
	admin := e.Group("/admin", RequireAdmin)
	admin.GET("/uploads", handler.HandlePendingUploads)
	admin.POST("/move_upload/*", handler.HandleMoveUpload)
	admin.POST("/decline_upload/*", handler.HandleDeclineUpload)
	admin.GET("/users", handler.HandleUsers)
	admin.GET("/presence", handler.HandlePresence)

	return e
}
