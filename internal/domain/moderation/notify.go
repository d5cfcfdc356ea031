package moderation

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/salehop/salehop-api/internal/pkg/logger"
)

// SyncMissChannel carries SyncMiss notices to the reconciler.
const SyncMissChannel = "moderation:sync_miss"

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisNotifier publishes sync misses on SyncMissChannel.
type RedisNotifier struct {
	client publisher
}

func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client}
}

// NotifySyncMiss is best-effort: failures are logged.
func (n *RedisNotifier) NotifySyncMiss(ctx context.Context, miss SyncMiss) {
	payload, err := json.Marshal(miss)
	if err != nil {
		return
	}
	if err := n.client.Publish(ctx, SyncMissChannel, payload).Err(); err != nil {
		logger.FromContext(ctx).Warn().Err(err).Msg("Failed to publish sync miss")
	}
}

// SubscribeWakeups signals wake for every message on SyncMissChannel until
// ctx is done. Signals are coalesced.
func SubscribeWakeups(ctx context.Context, rdb *redis.Client, wake chan<- struct{}) {
	sub := rdb.Subscribe(ctx, SyncMissChannel)
	defer func() { _ = sub.Close() }()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			select {
			case wake <- struct{}{}:
			default:
			}
		}
	}
}
