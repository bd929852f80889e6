package chathub

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisChannelPrefix = "chat:"

// RedisBroker publishes every channel as chat:<channel> and receives them all through one
// pattern subscription, so a frame reaches every node that has a subscriber.
type RedisBroker struct {
	client *redis.Client
	log    *zap.Logger

	pubsub *redis.PubSub
}

func NewRedisBroker(client *redis.Client, log *zap.Logger) *RedisBroker {
	return &RedisBroker{client: client, log: log.Named("redis-broker")}
}

func (b *RedisBroker) Publish(ctx context.Context, channel string, payload []byte) error {
	return errors.Wrapf(b.client.Publish(ctx, redisChannelPrefix+channel, payload).Err(), "publish %s", channel)
}

// Listen subscribes and starts a goroutine that forwards Redis messages to deliver.
func (b *RedisBroker) Listen(ctx context.Context, deliver DeliverFunc) error {
	pubsub := b.client.PSubscribe(ctx, redisChannelPrefix+"*")
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return errors.Wrap(err, "psubscribe")
	}
	b.pubsub = pubsub

	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				channel, found := strings.CutPrefix(msg.Channel, redisChannelPrefix)
				if !found {
					b.log.Warn("unexpected redis channel", zap.String("channel", msg.Channel))
					continue
				}
				deliver(channel, []byte(msg.Payload))
			}
		}
	}()
	return nil
}

func (b *RedisBroker) Close() error {
	if b.pubsub == nil {
		return nil
	}
	return b.pubsub.Close()
}
