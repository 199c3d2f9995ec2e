package handlers

import (
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthHandler(t *testing.T) {
	t.Run("NoDatabase", func(t *testing.T) {
		app := fiber.New()
		app.Get("/health", NewHealthHandler(nil, nil, "test", testLogger).Health)

		resp, raw := doRequest(t, app, http.MethodGet, "/health", "")
		require.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

		env := decodeEnvelope(t, raw)
		assert.Equal(t, "SERVICE_UNAVAILABLE", env.Error.Code)
		details, ok := env.Error.Details.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "degraded", details["status"])
		assert.Equal(t, map[string]any{"database": "error", "redis": "disabled"}, details["checks"])
	})

	t.Run("UnreachableRedis", func(t *testing.T) {
		rc := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
		defer func() { _ = rc.Close() }()

		app := fiber.New()
		app.Get("/health", NewHealthHandler(nil, rc, "test", testLogger).Health)

		resp, raw := doRequest(t, app, http.MethodGet, "/health", "")
		require.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

		details, ok := decodeEnvelope(t, raw).Error.Details.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "error", details["checks"].(map[string]any)["redis"])
	})
}
