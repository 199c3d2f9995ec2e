package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cotizabot/cotizabot/models"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// CachedInsurerRepository keeps the active insurer catalog in Redis. The catalog is edited
// outside this service, so entries simply expire after ttl.
type CachedInsurerRepository struct {
	next   InsurerRepository
	rc     *redis.Client
	key    string
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedInsurerRepository wraps next with a Redis read-through cache. A nil client disables caching.
func NewCachedInsurerRepository(next InsurerRepository, rc *redis.Client, key string, ttl time.Duration, logger *slog.Logger) InsurerRepository {
	if rc == nil || ttl <= 0 {
		return next
	}
	return &CachedInsurerRepository{
		next:   next,
		rc:     rc,
		key:    key,
		ttl:    ttl,
		logger: logger,
	}
}

// ListActiveWithRates serves the catalog from Redis when possible. Cache failures fall back to the database.
func (r *CachedInsurerRepository) ListActiveWithRates(ctx context.Context) ([]*models.Insurer, error) {
	bs, err := r.rc.Get(ctx, r.key).Bytes()
	switch {
	case err == nil:
		var insurers []*models.Insurer
		uerr := json.Unmarshal(bs, &insurers)
		if uerr == nil {
			return insurers, nil
		}
		r.logger.Warn("discarding malformed insurer cache entry", "key", r.key, "error", uerr)
	case !errors.Is(err, redis.Nil):
		r.logger.Warn("insurer cache read failed", "key", r.key, "error", err)
	}

	insurers, err := r.next.ListActiveWithRates(ctx)
	if err != nil {
		return nil, err
	}

	if bs, merr := json.Marshal(insurers); merr == nil {
		if serr := r.rc.Set(ctx, r.key, bs, r.ttl).Err(); serr != nil {
			r.logger.Warn("insurer cache write failed", "key", r.key, "error", serr)
		}
	}

	return insurers, nil
}
