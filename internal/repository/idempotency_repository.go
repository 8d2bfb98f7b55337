package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrOperationInFlight is returned when an idempotency key has been claimed
// but the first attempt has not finished yet.
var ErrOperationInFlight = errors.New("operation with this idempotency key is in flight")

// pendingMarker is stored while the first attempt runs.
const pendingMarker = "__pending__"

// IdempotencyRepository is a Redis-backed token store. A mutating operation
// claims its client-supplied key before any write; replays observe the stored
// first response and never reach the database.
type IdempotencyRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewIdempotencyRepository constructs the token store.
func NewIdempotencyRepository(client *redis.Client, ttl time.Duration) *IdempotencyRepository {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyRepository{client: client, ttl: ttl}
}

func (r *IdempotencyRepository) key(kind, token string) string {
	return fmt.Sprintf("idem:%s:%s", kind, token)
}

// Claim attempts to reserve the key. It returns claimed=true when this caller
// owns the first attempt, or the stored response of a finished earlier
// attempt.
func (r *IdempotencyRepository) Claim(ctx context.Context, kind, token string) (claimed bool, stored []byte, err error) {
	if r.client == nil {
		return true, nil, nil
	}
	ok, err := r.client.SetNX(ctx, r.key(kind, token), pendingMarker, r.ttl).Result()
	if err != nil {
		return false, nil, fmt.Errorf("claim idempotency key: %w", err)
	}
	if ok {
		return true, nil, nil
	}
	raw, err := r.client.Get(ctx, r.key(kind, token)).Bytes()
	if err != nil {
		if err == redis.Nil {
			// Key expired between SETNX and GET; treat as in flight and
			// let the caller retry.
			return false, nil, ErrOperationInFlight
		}
		return false, nil, fmt.Errorf("read idempotency key: %w", err)
	}
	if string(raw) == pendingMarker {
		return false, nil, ErrOperationInFlight
	}
	return false, raw, nil
}

// Complete stores the first response under the claimed key.
func (r *IdempotencyRepository) Complete(ctx context.Context, kind, token string, payload []byte) error {
	if r.client == nil {
		return nil
	}
	if err := r.client.Set(ctx, r.key(kind, token), payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("store idempotency result: %w", err)
	}
	return nil
}

// Release drops a claimed key after a failed attempt so the caller may retry.
func (r *IdempotencyRepository) Release(ctx context.Context, kind, token string) error {
	if r.client == nil {
		return nil
	}
	if err := r.client.Del(ctx, r.key(kind, token)).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}
