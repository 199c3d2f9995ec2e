// Package middleware contains HTTP middleware functions for request processing
package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/cotizabot/cotizabot/app/dto"
	"github.com/cotizabot/cotizabot/app/handlers"
	"github.com/cotizabot/cotizabot/config"
	"github.com/gofiber/fiber/v3"
	"golang.org/x/crypto/bcrypt"
)

// adminKey is one configured admin credential. Entries are written "name:bcrypt-hash";
// a bare hash gets a positional name.
type adminKey struct {
	name string
	hash []byte
}

// APIKeyMiddleware authenticates admin callers against bcrypt hashed API keys
type APIKeyMiddleware struct {
	header   string
	required bool
	keys     []adminKey
	// verified maps a sha256 digest of an accepted key to its actor, so bcrypt runs once per key.
	verified sync.Map
}

// NewAPIKeyMiddleware creates the middleware from security config
func NewAPIKeyMiddleware(cfg config.SecurityConfig) *APIKeyMiddleware {
	header := cfg.APIKeyHeader
	if header == "" {
		header = "X-API-Key"
	}

	keys := make([]adminKey, 0, len(cfg.AdminAPIKeyHashes))
	for i, entry := range cfg.AdminAPIKeyHashes {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name := fmt.Sprintf("admin-%d", i+1)
		hash := entry
		if idx := strings.Index(entry, ":"); idx > 0 && !strings.HasPrefix(entry, "$") {
			name = entry[:idx]
			hash = entry[idx+1:]
		}
		keys = append(keys, adminKey{name: name, hash: []byte(hash)})
	}

	return &APIKeyMiddleware{
		header:   header,
		required: cfg.RequireAPIKey,
		keys:     keys,
	}
}

// Authenticate rejects requests without a valid key and stores the caller name for audit
func (m *APIKeyMiddleware) Authenticate() fiber.Handler {
	return func(c fiber.Ctx) error {
		if !m.required {
			return c.Next()
		}

		apiKey := c.Get(m.header)
		if apiKey == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
				Success: false,
				Message: "API key is required",
				Error: dto.ErrorDetail{
					Code: "MISSING_API_KEY",
				},
			})
		}

		actor, ok := m.verify(apiKey)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
				Success: false,
				Message: "Invalid API key",
				Error: dto.ErrorDetail{
					Code: "INVALID_API_KEY",
				},
			})
		}

		c.Locals(handlers.ActorLocalKey, actor)
		return c.Next()
	}
}

func (m *APIKeyMiddleware) verify(apiKey string) (string, bool) {
	sum := sha256.Sum256([]byte(apiKey))
	digest := hex.EncodeToString(sum[:])
	if actor, ok := m.verified.Load(digest); ok {
		return actor.(string), true
	}

	for _, key := range m.keys {
		if bcrypt.CompareHashAndPassword(key.hash, []byte(apiKey)) == nil {
			m.verified.Store(digest, key.name)
			return key.name, true
		}
	}
	return "", false
}
