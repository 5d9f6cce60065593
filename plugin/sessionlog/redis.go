package sessionlog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "session:"

// RedisConfig holds the Redis session log configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Window   int
	TTL      time.Duration
}

// RedisLog stores session turns in a Redis list per session key.
type RedisLog struct {
	client *redis.Client
	window int
	ttl    time.Duration
}

// NewRedisLog connects to Redis and returns a session log backed by it.
func NewRedisLog(ctx context.Context, cfg RedisConfig) (*RedisLog, error) {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	slog.Info("session log connected", "addr", cfg.Addr, "window", cfg.Window, "ttl", cfg.TTL)

	return &RedisLog{client: client, window: cfg.Window, ttl: cfg.TTL}, nil
}

// Append records a turn, trims the window to the most recent entries and
// refreshes the TTL.
func (l *RedisLog) Append(ctx context.Context, sessionKey, role, content string, extra map[string]any) error {
	turn := Turn{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
		Extra:     extra,
	}
	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("failed to marshal turn: %w", err)
	}

	key := keyPrefix + sessionKey
	pipe := l.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, int64(-l.window), -1)
	pipe.Expire(ctx, key, l.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append turn: %w", err)
	}
	return nil
}

// ReadAll returns all turns of the session in append order.
func (l *RedisLog) ReadAll(ctx context.Context, sessionKey string) ([]Turn, error) {
	entries, err := l.client.LRange(ctx, keyPrefix+sessionKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	turns := make([]Turn, 0, len(entries))
	for _, entry := range entries {
		var turn Turn
		if err := json.Unmarshal([]byte(entry), &turn); err != nil {
			slog.Warn("skipping unreadable session turn", "session", sessionKey, "error", err)
			continue
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

// Clear removes the session. Idempotent.
func (l *RedisLog) Clear(ctx context.Context, sessionKey string) error {
	if err := l.client.Del(ctx, keyPrefix+sessionKey).Err(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (l *RedisLog) Close() error {
	return l.client.Close()
}

var _ Log = (*RedisLog)(nil)
