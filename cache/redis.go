package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"retail-svc/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func InitRedis(cfg *config.Config, logger *zap.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.RedisPassword,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis connection established", zap.String("addr", cfg.RedisAddr()))
	return rdb, nil
}

// ErrNoSeats is returned when a hold would exceed the seats left.
var ErrNoSeats = errors.New("no seats left to hold")

// HoldStore keeps the live seat holds of each event in a sorted set scored by
// expiry time, so expired holds drop out without a sweeper.
type HoldStore struct {
	rdb *redis.Client
}

func NewHoldStore(rdb *redis.Client) *HoldStore {
	return &HoldStore{rdb: rdb}
}

func holdsKey(eventID string) string {
	return fmt.Sprintf("event:%s:holds", eventID)
}

// placeHold trims expired members, then adds the hold only if fewer than
// ARGV[3] holds remain. Running it as one script keeps check and add atomic.
var placeHold = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
if redis.call('ZCARD', KEYS[1]) >= tonumber(ARGV[3]) then
  return 0
end
redis.call('ZADD', KEYS[1], ARGV[2], ARGV[4])
local last = redis.call('ZRANGE', KEYS[1], -1, -1, 'WITHSCORES')
redis.call('PEXPIREAT', KEYS[1], last[2])
return 1
`)

// Place adds holdID to the event unless limit holds are already live.
// limit is the number of seats not taken by bookings.
func (s *HoldStore) Place(ctx context.Context, eventID, holdID string, limit int, expiresAt time.Time) error {
	if limit <= 0 {
		return ErrNoSeats
	}
	now := time.Now().UnixMilli()
	ok, err := placeHold.Run(ctx, s.rdb, []string{holdsKey(eventID)},
		now, expiresAt.UnixMilli(), limit, holdID).Int()
	if err != nil {
		return fmt.Errorf("failed to place hold: %w", err)
	}
	if ok == 0 {
		return ErrNoSeats
	}
	return nil
}

// Count returns the number of unexpired holds.
func (s *HoldStore) Count(ctx context.Context, eventID string) (int, error) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	n, err := s.rdb.ZCount(ctx, holdsKey(eventID), "("+now, "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count holds: %w", err)
	}
	return int(n), nil
}

func (s *HoldStore) Release(ctx context.Context, eventID, holdID string) error {
	if err := s.rdb.ZRem(ctx, holdsKey(eventID), holdID).Err(); err != nil {
		return fmt.Errorf("failed to release hold: %w", err)
	}
	return nil
}
