package chathub

import (
	"context"
	"sync"
)

// DeliverFunc hands one published frame to the local subscribers of channel.
type DeliverFunc func(channel string, payload []byte)

// Broker is the pub/sub substrate. Publish is fire-and-forget with respect to subscribers;
// frames published to one channel from one goroutine arrive at Listen's callback in order.
type Broker interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Listen starts delivering every channel to deliver and returns once the subscription
	// is active. Delivery stops when ctx is cancelled or the broker is closed.
	Listen(ctx context.Context, deliver DeliverFunc) error
	Close() error
}

// LocalBroker delivers synchronously inside the process. It serves single-node deployments
// and tests.
type LocalBroker struct {
	mu      sync.RWMutex
	deliver DeliverFunc
}

func NewLocalBroker() *LocalBroker {
	return &LocalBroker{}
}

func (b *LocalBroker) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	deliver := b.deliver
	b.mu.RUnlock()
	if deliver != nil {
		deliver(channel, payload)
	}
	return nil
}

func (b *LocalBroker) Listen(ctx context.Context, deliver DeliverFunc) error {
	b.mu.Lock()
	b.deliver = deliver
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		b.deliver = nil
		b.mu.Unlock()
	}()
	return nil
}

func (b *LocalBroker) Close() error {
	b.mu.Lock()
	b.deliver = nil
	b.mu.Unlock()
	return nil
}
