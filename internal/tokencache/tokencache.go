// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package tokencache caches OAuth2 access tokens in Redis, keyed by
// account id and expired via TTL. A cache hit skips the refresh-token
// grant entirely, so the TTL carries a safety margin to keep a token
// from expiring mid-fetch.
package tokencache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// keyPrefix namespaces token keys in Redis.
	keyPrefix = "mailcheck:token:"

	// expiryMargin is shaved off the provider-reported lifetime.
	expiryMargin = 60 * time.Second
)

// Cache stores access tokens with their remaining lifetime.
type Cache struct {
	rdb *redis.Client
}

// New creates a token cache backed by Redis.
func New(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

// GetValidToken returns the cached token for an account, or "" when the
// cache has no unexpired entry.
func (c *Cache) GetValidToken(ctx context.Context, accountID int64) (string, error) {
	token, err := c.rdb.Get(ctx, key(accountID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("token cache GET: %w", err)
	}
	return token, nil
}

// CacheToken stores a token for expiresIn seconds, minus the safety margin.
func (c *Cache) CacheToken(ctx context.Context, accountID int64, token string, expiresIn int64) error {
	ttl := time.Duration(expiresIn) * time.Second
	if ttl > 2*expiryMargin {
		ttl -= expiryMargin
	}
	if err := c.rdb.Set(ctx, key(accountID), token, ttl).Err(); err != nil {
		return fmt.Errorf("token cache SET: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (c *Cache) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return c.rdb.Ping(ctx).Err()
}

func key(accountID int64) string {
	return fmt.Sprintf("%s%d", keyPrefix, accountID)
}
