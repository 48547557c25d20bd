// Package httpapi exposes attendance marking, history and the leaderboard
// over HTTP.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"geoattend/internal/attendance"
	"geoattend/internal/auth"
	"geoattend/internal/httpmiddleware"
	"geoattend/internal/identity"
	"geoattend/internal/leaderboard"
	"geoattend/internal/queue"
)

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) bool

// Deps are the collaborators of the API. Queue and Cache are optional.
type Deps struct {
	Service  *attendance.Service
	Provider identity.Provider
	Issuer   *auth.Issuer
	Queue    queue.Queue
	Cache    leaderboard.Cache
	Health   map[string]HealthCheck
	Log      *slog.Logger

	CORSOrigins     []string
	RateLimitPerMin int
}

// Handler serves the API endpoints.
type Handler struct {
	svc      *attendance.Service
	provider identity.Provider
	issuer   *auth.Issuer
	queue    queue.Queue
	cache    leaderboard.Cache
	health   map[string]HealthCheck
	log      *slog.Logger
}

// NewHandler creates a handler from d.
func NewHandler(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		svc:      d.Service,
		provider: d.Provider,
		issuer:   d.Issuer,
		queue:    d.Queue,
		cache:    d.Cache,
		health:   d.Health,
		log:      log,
	}
}

// NewRouter wires middleware and routes.
func NewRouter(d Deps) *gin.Engine {
	h := NewHandler(d)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestID())
	r.Use(httpmiddleware.AccessLog(h.log, "/healthz", "/metrics"))
	r.Use(httpmiddleware.CORS(d.CORSOrigins))
	r.Use(httpmiddleware.SecurityHeaders())

	perMin := d.RateLimitPerMin
	if perMin <= 0 {
		perMin = 120
	}
	publicLimit := httpmiddleware.NewSimpleTokenBucket(perMin, perMin).GinMiddleware(httpmiddleware.ClientIP)
	userLimit := httpmiddleware.NewSimpleTokenBucket(perMin, perMin).
		GinMiddleware(httpmiddleware.ContextKeyOr(auth.UserKeyContext, httpmiddleware.ClientIP))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", h.Healthz)

	v1 := r.Group("/v1")
	v1.GET("/geofence", h.Geofence)
	v1.POST("/sessions", publicLimit, h.CreateSession)
	v1.POST("/sessions/refresh", publicLimit, h.RefreshSession)

	authed := v1.Group("", auth.UserAuth(d.Issuer), userLimit)
	authed.POST("/attendance", h.Mark)
	authed.GET("/attendance/me", h.Me)
	authed.GET("/leaderboard", h.Leaderboard)
	authed.GET("/leaderboard/top", h.Top)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found", "message": "Not found."})
	})
	return r
}
