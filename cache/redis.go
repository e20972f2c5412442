/*
Package cache provides installment.ScheduleCache implementations.

PURPOSE:
  GetSchedule replays every payment of a contract. Dashboards ask for the same
  schedule far more often than it changes, so rendered schedules are cached
  per contract and dropped by the engine after every commit.

IMPLEMENTATIONS:
  - Redis:  shared across server instances (REDIS_ADDR)
  - Memory: single process, used when Redis is not configured and in tests

FAILURE:
  A cache is never a source of truth. Read errors are treated as misses and
  logged; write errors are returned so the engine can log them.
*/
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/warp/installment-engine/installment"
)

// DefaultTTL bounds how long a schedule survives a missed invalidation.
const DefaultTTL = 10 * time.Minute

type Redis struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedis connects to addr and pings it.
func NewRedis(ctx context.Context, addr string, logger *slog.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 2 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return NewRedisWithClient(client, logger), nil
}

// NewRedisWithClient wraps an existing client without pinging it.
func NewRedisWithClient(client *redis.Client, logger *slog.Logger) *Redis {
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{client: client, ttl: DefaultTTL, logger: logger}
}

func scheduleKey(id installment.ContractID) string {
	return fmt.Sprintf("contract:%s:schedule", id)
}

func (r *Redis) Get(ctx context.Context, id installment.ContractID) ([]installment.ScheduleLine, bool) {
	data, err := r.client.Get(ctx, scheduleKey(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Error("redis GET failed", "contract_id", id, "error", err)
		}
		return nil, false
	}

	var lines []installment.ScheduleLine
	if err := json.Unmarshal(data, &lines); err != nil {
		r.logger.Warn("failed to unmarshal cached schedule", "contract_id", id, "error", err)
		return nil, false
	}
	return lines, true
}

func (r *Redis) Set(ctx context.Context, id installment.ContractID, lines []installment.ScheduleLine) error {
	data, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("failed to encode schedule: %w", err)
	}
	return r.client.Set(ctx, scheduleKey(id), data, r.ttl).Err()
}

func (r *Redis) Invalidate(ctx context.Context, id installment.ContractID) error {
	return r.client.Del(ctx, scheduleKey(id)).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
