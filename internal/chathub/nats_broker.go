package chathub

import (
	"context"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const natsSubjectPrefix = "chat."

// NatsBroker maps channel user:<id> to subject chat.user:<id>. Ids must not contain '.', '*'
// or '>' since those are NATS subject tokens.
type NatsBroker struct {
	conn *nats.Conn
	log  *zap.Logger

	sub *nats.Subscription
}

func NewNatsBroker(conn *nats.Conn, log *zap.Logger) *NatsBroker {
	return &NatsBroker{conn: conn, log: log.Named("nats-broker")}
}

func subjectFor(channel string) string {
	return natsSubjectPrefix + channel
}

func channelFor(subject string) (string, bool) {
	return strings.CutPrefix(subject, natsSubjectPrefix)
}

func (b *NatsBroker) Publish(_ context.Context, channel string, payload []byte) error {
	if strings.ContainsAny(channel, ".*> ") {
		return errors.Errorf("channel %q is not a valid subject token", channel)
	}
	return errors.Wrapf(b.conn.Publish(subjectFor(channel), payload), "publish %s", channel)
}

func (b *NatsBroker) Listen(ctx context.Context, deliver DeliverFunc) error {
	sub, err := b.conn.Subscribe(natsSubjectPrefix+">", func(msg *nats.Msg) {
		channel, ok := channelFor(msg.Subject)
		if !ok {
			b.log.Warn("unexpected nats subject", zap.String("subject", msg.Subject))
			return
		}
		deliver(channel, msg.Data)
	})
	if err != nil {
		return errors.Wrap(err, "subscribe")
	}
	if err := b.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return errors.Wrap(err, "flush subscription")
	}
	b.sub = sub

	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()
	return nil
}

func (b *NatsBroker) Close() error {
	if b.sub != nil {
		_ = b.sub.Unsubscribe()
	}
	return b.conn.Drain()
}
