package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"marmora/internal/infrastructure/storage/postgres"
)

// HealthHandler provides health check endpoints. pool and redisClient are
// optional, only the configured backend's dependencies are checked.
type HealthHandler struct {
	pool        *postgres.Pool
	redisClient redis.UniversalClient
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(pool *postgres.Pool, redisClient redis.UniversalClient) *HealthHandler {
	return &HealthHandler{pool: pool, redisClient: redisClient}
}

// Live handles liveness probe (is the process alive?).
// GET /health/live
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Ready handles readiness probe (is the service ready to accept traffic?).
// GET /health/ready
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx := c.Request.Context()
	checks := map[string]string{}
	healthy := true

	if h.pool != nil {
		if err := h.pool.Ping(ctx); err != nil {
			checks["database"] = "unhealthy: " + err.Error()
			healthy = false
		} else {
			checks["database"] = "healthy"
		}
	}

	if h.redisClient != nil {
		if err := h.redisClient.Ping(ctx).Err(); err != nil {
			checks["redis"] = "unhealthy: " + err.Error()
			healthy = false
		} else {
			checks["redis"] = "healthy"
		}
	}

	status := http.StatusOK
	statusText := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		statusText = "error"
	}
	c.JSON(status, gin.H{
		"status": statusText,
		"checks": checks,
	})
}

// Info returns application information.
// GET /health/info
func (h *HealthHandler) Info(c *gin.Context) {
	info := gin.H{
		"app":     "marmora",
		"version": "0.1.0",
	}

	if h.pool != nil {
		stat := h.pool.Stat()
		info["database"] = map[string]any{
			"total_conns":    stat.TotalConns(),
			"acquired_conns": stat.AcquiredConns(),
			"idle_conns":     stat.IdleConns(),
			"max_conns":      stat.MaxConns(),
		}
	}

	c.JSON(http.StatusOK, info)
}

// RegisterRoutes registers health routes.
func (h *HealthHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/live", h.Live)
	rg.GET("/ready", h.Ready)
	rg.GET("/info", h.Info)
}
