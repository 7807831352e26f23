package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/arklim/tenant-access/internal/core/domain"
	"github.com/arklim/tenant-access/internal/core/port"
	"github.com/arklim/tenant-access/internal/repository"
)

const defaultPermissionCachePrefix = "access:permissions"

// PermissionCache stores resolved permission matrices as JSON, one key per tenant and user.
type PermissionCache struct {
	client *red.Client
	prefix string
}

// NewPermissionCache constructs a Redis-backed permission cache.
func NewPermissionCache(client *red.Client, keyPrefix string) *PermissionCache {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultPermissionCachePrefix
	}
	return &PermissionCache{client: client, prefix: prefix}
}

// Set overwrites the cached matrix for the user.
func (c *PermissionCache) Set(ctx context.Context, tenant domain.Tenant, userID string, matrix domain.PermissionMatrix, ttl time.Duration) error {
	key, err := c.key(tenant, userID)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive")
	}

	payload, err := json.Marshal(matrix)
	if err != nil {
		return fmt.Errorf("marshal permission matrix: %w", err)
	}

	if err := c.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set permissions: %w", err)
	}
	return nil
}

// Get returns the cached matrix or repository.ErrNotFound once it expired.
func (c *PermissionCache) Get(ctx context.Context, tenant domain.Tenant, userID string) (domain.PermissionMatrix, error) {
	key, err := c.key(tenant, userID)
	if err != nil {
		return nil, err
	}

	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis get permissions: %w", err)
	}

	var matrix domain.PermissionMatrix
	if err := json.Unmarshal(raw, &matrix); err != nil {
		return nil, fmt.Errorf("decode cached permissions: %w", err)
	}
	if matrix == nil {
		matrix = domain.PermissionMatrix{}
	}
	return matrix, nil
}

// Delete drops the cached matrix, forcing the next check to fail closed.
func (c *PermissionCache) Delete(ctx context.Context, tenant domain.Tenant, userID string) error {
	key, err := c.key(tenant, userID)
	if err != nil {
		return err
	}
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete permissions: %w", err)
	}
	return nil
}

func (c *PermissionCache) key(tenant domain.Tenant, userID string) (string, error) {
	if err := tenant.Validate(); err != nil {
		return "", err
	}
	trimmed := strings.TrimSpace(userID)
	if trimmed == "" {
		return "", fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	return fmt.Sprintf("%s:%s:%s", c.prefix, tenant, trimmed), nil
}

var _ port.PermissionCache = (*PermissionCache)(nil)
