package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/utafrali/storefront/pkg/errors"
)

const (
	keyPrefix = "storefront:session:"
	keySuffix = ":cart"
)

// CartIDRepository implements repository.CartIDRepository using Redis. Every
// read and write extends the key's TTL, so a cart ID lives as long as its
// session keeps being used.
type CartIDRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCartIDRepository creates a new Redis-backed session cart ID repository.
func NewCartIDRepository(client *redis.Client, ttl time.Duration) *CartIDRepository {
	return &CartIDRepository{
		client: client,
		ttl:    ttl,
	}
}

// Key returns the Redis key holding the cart ID of a session.
func Key(sessionID string) string {
	return keyPrefix + sessionID + keySuffix
}

// Get returns the cart ID of a session and refreshes its TTL.
func (r *CartIDRepository) Get(ctx context.Context, sessionID string) (string, error) {
	cartID, err := r.client.GetEx(ctx, Key(sessionID), r.ttl).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", apperrors.NotFound("cart", sessionID)
		}
		return "", fmt.Errorf("redis get cart id: %w", err)
	}
	return cartID, nil
}

// Set records the cart ID of a session with the configured TTL.
func (r *CartIDRepository) Set(ctx context.Context, sessionID, cartID string) error {
	if err := r.client.Set(ctx, Key(sessionID), cartID, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set cart id: %w", err)
	}
	return nil
}

// Delete forgets the cart ID of a session.
func (r *CartIDRepository) Delete(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, Key(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis del cart id: %w", err)
	}
	return nil
}
