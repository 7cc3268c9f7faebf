package engineinfra

import (
	"context"
	"encoding/json"

	"github.com/Abraxas-365/craftable/errx"
	"github.com/go-redis/redis/v8"
	"github.com/velora-labs/conversa/engine"
)

// RedisNotificationBus pub/sub para actualizaciones en vivo de la UI. Fire
// and forget: el runtime publica y sigue, los suscriptores son opcionales.
type RedisNotificationBus struct {
	redis *redis.Client
}

var _ engine.NotificationBus = (*RedisNotificationBus)(nil)

func NewRedisNotificationBus(redisClient *redis.Client) *RedisNotificationBus {
	return &RedisNotificationBus{redis: redisClient}
}

func (b *RedisNotificationBus) Publish(ctx context.Context, tenantChannel string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return errx.Wrap(err, "failed to marshal event", errx.TypeInternal).
			WithDetail("channel", tenantChannel)
	}

	if err := b.redis.Publish(ctx, tenantChannel, payload).Err(); err != nil {
		return errx.Wrap(err, "failed to publish event", errx.TypeExternal).
			WithDetail("channel", tenantChannel)
	}
	return nil
}
