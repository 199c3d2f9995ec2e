package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/cotizabot/cotizabot/utils"
	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const healthCheckTimeout = 2 * time.Second

// HealthHandler reports whether the service and its backing stores are reachable
type HealthHandler struct {
	baseHandler
	db      *gorm.DB
	rc      *redis.Client
	version string
}

// NewHealthHandler creates a health handler. A nil redis client is reported as disabled.
func NewHealthHandler(db *gorm.DB, rc *redis.Client, version string, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		baseHandler: newBaseHandler(logger),
		db:          db,
		rc:          rc,
		version:     version,
	}
}

// Health handles liveness and dependency checks
// @Summary Health Check
// @Tags Health
// @Produce json
// @Success 200 {object} dto.APIResponse "Service is healthy"
// @Failure 503 {object} dto.APIResponse "A dependency is unavailable"
// @Router /api/v1/health [get]
func (h *HealthHandler) Health(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
	defer cancel()

	checks := fiber.Map{
		"database": h.checkDatabase(ctx),
		"redis":    h.checkRedis(ctx),
	}

	healthy := checks["database"] == "ok" && checks["redis"] != "error"
	data := fiber.Map{
		"status":    "ok",
		"timestamp": utils.UTCNow().Unix(),
		"version":   h.version,
		"service":   "cotizabot-api",
		"checks":    checks,
	}

	if !healthy {
		data["status"] = "degraded"
		return h.ErrorResponse(c, fiber.StatusServiceUnavailable, "Service is unhealthy", "SERVICE_UNAVAILABLE", data)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Service is healthy", data)
}

func (h *HealthHandler) checkDatabase(ctx context.Context) string {
	if h.db == nil {
		return "error"
	}
	sqlDB, err := h.db.DB()
	if err != nil {
		h.logger.Warn("health check: database handle unavailable", "error", err)
		return "error"
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		h.logger.Warn("health check: database ping failed", "error", err)
		return "error"
	}
	return "ok"
}

func (h *HealthHandler) checkRedis(ctx context.Context) string {
	if h.rc == nil {
		return "disabled"
	}
	if err := h.rc.Ping(ctx).Err(); err != nil {
		h.logger.Warn("health check: redis ping failed", "error", err)
		return "error"
	}
	return "ok"
}
