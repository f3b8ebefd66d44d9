package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// idempotencyTTL is how long a completed result is replayable.
	// The client controls key uniqueness, so a long window is safe.
	idempotencyTTL = 24 * time.Hour

	// processingTTL bounds the lock held while a request is in flight.
	processingTTL = 5 * time.Minute

	processingMarker = "processing"
)

// ErrDuplicateRequest indicates the idempotency key is currently being
// processed by another request.
var ErrDuplicateRequest = errors.New("duplicate request: idempotency key already in flight")

// IdempotencyResult is the cached outcome of an idempotent create.
type IdempotencyResult struct {
	NotificationID string `json:"notification_id"`
	StatusCode     int    `json:"status_code"`
	CreatedAt      int64  `json:"created_at"`
}

// IdempotencyService deduplicates notification creates by client-supplied
// Idempotency-Key, using Redis SET-NX as the reservation primitive.
type IdempotencyService struct {
	client *Client
	logger *zap.Logger
}

// NewIdempotencyService creates an idempotency service.
func NewIdempotencyService(client *Client, logger *zap.Logger) *IdempotencyService {
	return &IdempotencyService{client: client, logger: logger}
}

func (s *IdempotencyService) buildKey(idempotencyKey string) string {
	return fmt.Sprintf("aviso:idempotency:%s", idempotencyKey)
}

// Check retrieves a cached result. Returns (nil, nil) when the key is
// unknown, the result when complete, or ErrDuplicateRequest while the
// original request is still processing.
func (s *IdempotencyService) Check(ctx context.Context, idempotencyKey string) (*IdempotencyResult, error) {
	key := s.buildKey(idempotencyKey)

	val, err := s.client.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	if val == processingMarker {
		return nil, ErrDuplicateRequest
	}

	var result IdempotencyResult
	if err := json.Unmarshal([]byte(val), &result); err != nil {
		s.logger.Error("failed to unmarshal idempotency result", zap.Error(err))
		return nil, fmt.Errorf("invalid cached result: %w", err)
	}

	s.logger.Debug("idempotency cache hit",
		zap.String("notification_id", result.NotificationID),
	)

	return &result, nil
}

// Store saves the result of a completed request, replacing the
// processing marker.
func (s *IdempotencyService) Store(ctx context.Context, idempotencyKey string, result *IdempotencyResult) error {
	key := s.buildKey(idempotencyKey)

	if result.CreatedAt == 0 {
		result.CreatedAt = time.Now().Unix()
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	if err := s.client.rdb.Set(ctx, key, data, idempotencyTTL).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}

	return nil
}

// CheckOrReserve atomically checks for an existing result or reserves
// the key for this request. Returns the cached result if complete, nil
// if the key was reserved, or ErrDuplicateRequest if another request
// holds the reservation.
func (s *IdempotencyService) CheckOrReserve(ctx context.Context, idempotencyKey string) (*IdempotencyResult, error) {
	result, err := s.Check(ctx, idempotencyKey)
	if err != nil {
		return nil, err
	}
	if result != nil {
		return result, nil
	}

	key := s.buildKey(idempotencyKey)
	reserved, err := s.client.rdb.SetNX(ctx, key, processingMarker, processingTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("redis setnx failed: %w", err)
	}
	if !reserved {
		return nil, ErrDuplicateRequest
	}

	return nil, nil
}

// Release drops a reservation after a failed request so the client can
// retry with the same key.
func (s *IdempotencyService) Release(ctx context.Context, idempotencyKey string) error {
	return s.client.rdb.Del(ctx, s.buildKey(idempotencyKey)).Err()
}
