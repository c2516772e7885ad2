package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"eventgate/internal/auth"
	"eventgate/internal/httpmiddleware"
	"eventgate/internal/logging"
	"eventgate/internal/metrics"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// RouterConfig collects what the router needs beyond the handler.
type RouterConfig struct {
	Tokens      *auth.Tokens
	Limiter     httpmiddleware.Limiter
	CORSOrigins []string
	// Health is keyed by dependency name, e.g. "db" or "redis".
	Health map[string]HealthCheck
	Log    zerolog.Logger
}

// NewRouter mounts every route on a fresh gin engine.
func NewRouter(h *Handler, rc RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.CustomRecovery(func(c *gin.Context, rec any) {
		rc.Log.Error().Interface("panic", rec).Str("path", c.Request.URL.Path).Msg("handler panicked")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}))
	r.Use(httpmiddleware.RequestID())
	r.Use(logging.Gin(rc.Log, "/healthz", "/metrics"))
	r.Use(metrics.Gin())
	r.Use(corsMiddleware(rc.CORSOrigins))
	r.Use(httpmiddleware.SecurityHeaders())
	if rc.Limiter != nil {
		r.Use(httpmiddleware.RateLimit(rc.Limiter, rc.Log))
	}

	r.GET("/", h.Root)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", healthz(rc.Health))

	api := r.Group("/api")
	api.POST("/register", h.Register)
	api.POST("/login", h.Login)
	api.GET("/user/:id", h.GetUser)

	staffOnly := api.Group("", auth.StaffAuth(rc.Tokens))
	staffOnly.POST("/update-attendance", h.UpdateAttendance)
	staffOnly.POST("/scan-qr", h.ScanQR)
	staffOnly.GET("/registrations", h.ListRegistrations)
	staffOnly.GET("/stats", h.Stats)
	staffOnly.GET("/me", h.Me)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Endpoint not found"})
	})
	return r
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", httpmiddleware.RequestIDHeader},
		ExposeHeaders:    []string{httpmiddleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		// credentials cannot be combined with a literal wildcard
		cfg.AllowOriginFunc = func(string) bool { return true }
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

func healthz(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		body := gin.H{"status": "ok"}
		status := http.StatusOK
		for name, check := range checks {
			ok := check(ctx)
			body[name] = ok
			if !ok {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
			}
		}
		c.JSON(status, body)
	}
}
