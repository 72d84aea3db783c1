package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"rfidattend/internal/attendance"
	"rfidattend/internal/auth"
	"rfidattend/internal/httpmiddleware"
	"rfidattend/internal/live"
	"rfidattend/internal/queue"
	"rfidattend/internal/validator"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Deps are the collaborators of the HTTP layer.
type Deps struct {
	Service        *attendance.Service
	Guard          *attendance.Guard
	Issuer         *auth.Issuer
	Operator       auth.Operator
	Queue          queue.Queue
	Hub            *live.Hub
	Limiter        httpmiddleware.Limiter
	HealthChecks   map[string]HealthCheck
	AllowedOrigins []string
	Log            zerolog.Logger
}

type handler struct {
	Deps
	log zerolog.Logger
}

// NewRouter builds the gin engine with every route.
func NewRouter(d Deps) *gin.Engine {
	validator.Setup()
	h := &handler{Deps: d, log: d.Log.With().Str("component", "http").Logger()}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestID())
	r.Use(httpmiddleware.AccessLog(h.log, "/healthz", "/metrics"))
	r.Use(corsMiddleware(d.AllowedOrigins))
	r.Use(httpmiddleware.SecurityHeaders())
	if d.Limiter != nil {
		r.Use(httpmiddleware.RateLimit(d.Limiter, h.log))
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", h.health)

	operator := auth.OperatorAuth(d.Issuer)

	api := r.Group("/api")
	api.POST("/check-in", h.deviceCheckIn)
	api.POST("/seed", operator, h.seed)

	v1 := r.Group("/v1")
	v1.POST("/auth/login", h.login)
	v1.POST("/auth/refresh", h.refresh)
	if d.Hub != nil {
		v1.GET("/live", operator, live.ServeWS(d.Hub, d.AllowedOrigins))
	}

	admin := v1.Group("", operator, httpmiddleware.Brotli(5))
	admin.GET("/students", h.listStudents)
	admin.POST("/students", h.createStudent)
	admin.GET("/students/:id", h.getStudent)
	admin.PUT("/students/:id", h.updateStudent)
	admin.DELETE("/students/:id", h.deleteStudent)

	admin.POST("/checkins", h.manualCheckIn)
	admin.GET("/checkins", h.dayLog)

	admin.GET("/stats/summary", h.summary)
	admin.GET("/stats/trend", h.trend)

	admin.GET("/batches", h.listBatches)
	admin.POST("/batches", h.requestArchive)

	admin.GET("/device-key", h.deviceKeyStatus)
	admin.POST("/device-key", h.rotateDeviceKey)

	return r
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-API-Key", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: len(origins) > 0,
		MaxAge:           24 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

func (h *handler) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := gin.H{}
	for name, check := range h.HealthChecks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}
	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{"status": state, "checks": checks})
}
