package branding

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Refresher сбрасывает закэшированное оформление арендатора после изменения шага брендинга
type Refresher interface {
	RefreshBranding(ctx context.Context, tenantID uuid.UUID) error
}

// RedisRefresher удаляет ключ кэша и оповещает подписчиков через pub/sub
type RedisRefresher struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

func NewRedisRefresher(client *redis.Client, prefix string, logger *slog.Logger) *RedisRefresher {
	return &RedisRefresher{client: client, prefix: prefix, logger: logger}
}

// NewRedisRefresherFromURL разбирает REDIS_URL и создаёт клиента
func NewRedisRefresherFromURL(url, prefix string, logger *slog.Logger) (*RedisRefresher, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisRefresher(redis.NewClient(opts), prefix, logger), nil
}

// CacheKey - ключ кэша оформления арендатора
func (r *RedisRefresher) CacheKey(tenantID uuid.UUID) string {
	return r.prefix + ":" + tenantID.String()
}

// Channel - канал уведомлений об обновлении оформления
func (r *RedisRefresher) Channel() string {
	return r.prefix + ":refresh"
}

func (r *RedisRefresher) RefreshBranding(ctx context.Context, tenantID uuid.UUID) error {
	if err := r.client.Del(ctx, r.CacheKey(tenantID)).Err(); err != nil {
		return fmt.Errorf("drop branding cache: %w", err)
	}
	if err := r.client.Publish(ctx, r.Channel(), tenantID.String()).Err(); err != nil {
		return fmt.Errorf("publish branding refresh: %w", err)
	}

	r.logger.Debug("branding cache refreshed", slog.String("tenant_id", tenantID.String()))
	return nil
}

func (r *RedisRefresher) Close() error {
	return r.client.Close()
}

// LogRefresher используется, когда Redis не настроен
type LogRefresher struct {
	logger *slog.Logger
}

func NewLogRefresher(logger *slog.Logger) *LogRefresher {
	return &LogRefresher{logger: logger}
}

func (r *LogRefresher) RefreshBranding(_ context.Context, tenantID uuid.UUID) error {
	r.logger.Info("branding changed", slog.String("tenant_id", tenantID.String()))
	return nil
}
