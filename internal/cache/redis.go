// Package cache реализует кэширование снимков метрик в Redis
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/MCPumpkingz/polar-dashboard/internal/config"
	"github.com/MCPumpkingz/polar-dashboard/internal/metrics"
	"github.com/MCPumpkingz/polar-dashboard/internal/models"
)

const (
	// SnapshotKeyPrefix префикс ключей снимков по длине окна
	SnapshotKeyPrefix = "snapshot:window:"
	// LatestSnapshotKey ключ последнего снимка окна по умолчанию
	LatestSnapshotKey = "snapshot:latest"
	// StateHistoryKey список последних состояний (новые в начале)
	StateHistoryKey = "snapshot:states"
	// StateHistorySize сколько состояний хранить
	StateHistorySize = 1000
	// DefaultTTL время жизни снимка по умолчанию
	DefaultTTL = 5 * time.Minute
)

// ErrNoSnapshot - в кэше нет снимка
var ErrNoSnapshot = errors.New("no cached snapshot")

// RedisCache хранит последние снимки, чтобы пережить сбой хранилища и рестарт сервиса
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache создает новое подключение к Redis
func NewRedisCache(ctx context.Context, cfg config.RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	ttl := cfg.SnapshotTTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &RedisCache{
		client: client,
		ttl:    ttl,
	}, nil
}

// SaveSnapshot сохраняет снимок под ключом его окна. Снимок окна по умолчанию
// дополнительно пишется в snapshot:latest, его состояние - в историю.
func (r *RedisCache) SaveSnapshot(ctx context.Context, s models.Snapshot, latest bool) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, snapshotKey(s.WindowMinutes), data, r.ttl)
	if latest {
		pipe.Set(ctx, LatestSnapshotKey, data, r.ttl)
		pipe.LPush(ctx, StateHistoryKey, s.State.String())
		pipe.LTrim(ctx, StateHistoryKey, 0, StateHistorySize-1)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache snapshot: %w", err)
	}
	return nil
}

// SnapshotFor возвращает последний снимок для окна длиной minutes
func (r *RedisCache) SnapshotFor(ctx context.Context, minutes int) (models.Snapshot, error) {
	return r.load(ctx, snapshotKey(minutes))
}

// LatestSnapshot возвращает последний снимок окна по умолчанию
func (r *RedisCache) LatestSnapshot(ctx context.Context) (models.Snapshot, error) {
	return r.load(ctx, LatestSnapshotKey)
}

// StateHistory возвращает до count последних состояний, новые первыми
func (r *RedisCache) StateHistory(ctx context.Context, count int64) ([]models.State, error) {
	keys, err := r.client.LRange(ctx, StateHistoryKey, 0, count-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get state history: %w", err)
	}

	states := make([]models.State, 0, len(keys))
	for _, k := range keys {
		var s models.State
		if err := s.UnmarshalText([]byte(k)); err != nil {
			continue
		}
		states = append(states, s)
	}
	return states, nil
}

// Ping проверяет соединение с Redis
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close закрывает соединение
func (r *RedisCache) Close() error {
	return r.client.Close()
}

func (r *RedisCache) load(ctx context.Context, key string) (models.Snapshot, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.CacheMisses.Inc()
		return models.Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to get snapshot: %w", err)
	}

	var s models.Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	metrics.CacheHits.Inc()
	return s, nil
}

func snapshotKey(minutes int) string {
	return fmt.Sprintf("%s%d", SnapshotKeyPrefix, minutes)
}
