package authz

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// RoleCache keeps per-user role sets in Redis with a short TTL. The cache is
// advisory: any Redis failure falls through to the store, and every role
// mutation invalidates the affected entry. Concurrent loads for the same
// entry are collapsed.
type RoleCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewRoleCache constructs a RoleCache.
func NewRoleCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RoleCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &RoleCache{client: client, ttl: ttl, logger: logger}
}

func roleCacheKey(domain, userID string) string {
	return "authgate:roles:" + domain + ":" + userID
}

// Roles returns the cached role set for the pair, loading through load on a
// miss.
func (c *RoleCache) Roles(ctx context.Context, domain, userID string, load func(ctx context.Context) ([]Role, error)) ([]Role, error) {
	key := roleCacheKey(domain, userID)
	if cached, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var names []string
		if err := json.Unmarshal(cached, &names); err == nil {
			roles := make([]Role, len(names))
			for i, name := range names {
				roles[i] = Role(name)
			}
			return roles, nil
		}
		c.logger.Warn("role cache entry corrupt", slog.String("domain", domain))
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("role cache read", slog.String("domain", domain), slog.Any("error", err))
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		roles, err := load(ctx)
		if err != nil {
			return nil, err
		}
		names := make([]string, len(roles))
		for i, role := range roles {
			names[i] = string(role)
		}
		payload, err := json.Marshal(names)
		if err == nil {
			if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
				c.logger.Warn("role cache write", slog.String("domain", domain), slog.Any("error", err))
			}
		}
		return roles, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Role), nil
}

// Invalidate drops the cached entry for the pair. Called after every role
// mutation so a revoke is never masked beyond the in-flight requests.
func (c *RoleCache) Invalidate(ctx context.Context, domain, userID string) {
	if err := c.client.Del(ctx, roleCacheKey(domain, userID)).Err(); err != nil {
		c.logger.Warn("role cache invalidate", slog.String("domain", domain), slog.Any("error", err))
	}
}
