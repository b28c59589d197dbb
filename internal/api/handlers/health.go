package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/linkflow-ai/flowmirror/internal/api/dto"
	"github.com/linkflow-ai/flowmirror/internal/pkg/circuitbreaker"
	"github.com/linkflow-ai/flowmirror/internal/pkg/metrics"
	pkgredis "github.com/linkflow-ai/flowmirror/internal/pkg/redis"
	"gorm.io/gorm"
)

// BreakerStates reports the circuit breaker of each remote host.
type BreakerStates interface {
	CircuitStates() map[string]circuitbreaker.State
}

type HealthHandler struct {
	db       *gorm.DB
	redis    *pkgredis.Client
	breakers BreakerStates
}

// NewHealthHandler takes a nil redis client when Redis is disabled, and nil
// breakers when no remote client is shared.
func NewHealthHandler(db *gorm.DB, redis *pkgredis.Client, breakers BreakerStates) *HealthHandler {
	return &HealthHandler{db: db, redis: redis, breakers: breakers}
}

func (h *HealthHandler) checks(ctx context.Context) (map[string]string, bool) {
	checks := make(map[string]string)
	healthy := true

	if err := h.pingDB(ctx); err != nil {
		checks["database"] = "error: " + err.Error()
		healthy = false
	} else {
		checks["database"] = "ok"
	}

	if h.redis != nil {
		if err := h.redis.Health(ctx); err != nil {
			checks["redis"] = "error: " + err.Error()
			healthy = false
		} else {
			checks["redis"] = "ok"
		}
	} else {
		checks["redis"] = "not configured"
	}
	return checks, healthy
}

func (h *HealthHandler) pingDB(ctx context.Context) error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	metrics.DBConnectionsOpen.Set(float64(sqlDB.Stats().OpenConnections))

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	checks, healthy := h.checks(r.Context())

	status := "healthy"
	statusCode := http.StatusOK
	if !healthy {
		status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}

	body := map[string]interface{}{
		"status":  status,
		"service": "flowmirror",
		"checks":  checks,
	}
	// An open breaker means a remote instance is failing, not this service.
	if h.breakers != nil {
		upstreams := make(map[string]string)
		for host, state := range h.breakers.CircuitStates() {
			upstreams[host] = state.String()
		}
		body["upstreams"] = upstreams
	}
	dto.JSON(w, statusCode, body)
}

func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	dto.OK(w, map[string]string{"status": "alive"})
}

func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.pingDB(r.Context()); err != nil {
		dto.ServiceUnavailable(w, "database not ready: "+err.Error())
		return
	}
	dto.OK(w, map[string]string{"status": "ready"})
}
