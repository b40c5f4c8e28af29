// health.go — обработчики health endpoints для Kubernetes probes.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/arturkryukov/geocat/resource-module/internal/config"
)

// statusFail — строковая константа для статуса "fail" в health checks.
const statusFail = "fail"

// ReadinessChecker — проверка готовности PostgreSQL
// (реализуется database.ReadinessChecker).
type ReadinessChecker interface {
	CheckReady() (status string, message string)
}

// Pinger — проверка доступности Redis (реализуется staging.Store).
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler реализует health endpoints: /health/live, /health/ready.
type HealthHandler struct {
	version string
	db      ReadinessChecker
	staging Pinger
}

// NewHealthHandler создаёт обработчик health endpoints.
func NewHealthHandler(db ReadinessChecker, staging Pinger) *HealthHandler {
	return &HealthHandler{
		version: config.Version,
		db:      db,
		staging: staging,
	}
}

// HealthLive обрабатывает GET /health/live.
// Возвращает 200, если процесс жив. Зависимости не проверяются.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "resource-module",
	})
}

// HealthReady обрабатывает GET /health/ready.
// Проверяет PostgreSQL и Redis; CKAN намеренно не входит в readiness —
// его недоступность не должна снимать под с балансировки,
// локальные операции продолжают работать.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	overallStatus := "ok"
	httpStatus := http.StatusOK

	checks := make(map[string]map[string]string)

	dbStatus, dbMessage := "ok", ""
	if h.db != nil {
		dbStatus, dbMessage = h.db.CheckReady()
	}
	checks["postgresql"] = map[string]string{"status": dbStatus, "message": dbMessage}
	if dbStatus != "ok" {
		overallStatus = statusFail
		httpStatus = http.StatusServiceUnavailable
	}

	redisStatus, redisMessage := "ok", ""
	if h.staging != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := h.staging.Ping(ctx); err != nil {
			redisStatus = statusFail
			redisMessage = err.Error()
		}
	}
	checks["redis"] = map[string]string{"status": redisStatus, "message": redisMessage}
	if redisStatus != "ok" {
		overallStatus = statusFail
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"checks":    checks,
	})
}
