package redis

import (
	"context"
	"sync"
	"sync/atomic"

	goredis "github.com/redis/go-redis/v9"
)

const defaultBuffer = 256

// Message is one received pub/sub message.
type Message struct {
	Channel string
	Payload string
}

// PubSub publishes and subscribes through Redis. Like the in-process
// backend, a subscriber that falls behind loses messages instead of
// stalling the connection; losses are counted.
type PubSub struct {
	client  *goredis.Client
	bufSize int
	dropped atomic.Int64
}

// NewPubSub connects a PubSub. bufSize is the per-subscriber buffer; zero
// means 256.
func NewPubSub(cfg Config, bufSize int) (*PubSub, error) {
	client, err := connect(cfg)
	if err != nil {
		return nil, err
	}
	if bufSize <= 0 {
		bufSize = defaultBuffer
	}
	return &PubSub{client: client, bufSize: bufSize}, nil
}

// Close releases the connection pool.
func (p *PubSub) Close() error { return p.client.Close() }

func (p *PubSub) Publish(ctx context.Context, channel, message string) error {
	return p.client.Publish(ctx, channel, message).Err()
}

// Subscribe returns one stream for all of channels and a cancel function.
// The stream is closed by cancel or when ctx ends; cancel may be called
// more than once.
func (p *PubSub) Subscribe(ctx context.Context, channels ...string) (<-chan *Message, func(), error) {
	sub := p.client.Subscribe(ctx, channels...)
	// Wait for the confirmation so no message published after Subscribe
	// returns is missed.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, err
	}

	subCtx, stop := context.WithCancel(ctx)
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			stop()
			_ = sub.Close()
		})
	}
	out := make(chan *Message, p.bufSize)
	go func() {
		pump(subCtx, sub.Channel(), out, &p.dropped)
		cancel()
	}()
	return out, cancel, nil
}

// Dropped returns how many messages were lost to full subscriber buffers.
func (p *PubSub) Dropped() int64 {
	return p.dropped.Load()
}

// pump copies messages from in to out until ctx ends or in closes, then
// closes out. It never blocks on out.
func pump(ctx context.Context, in <-chan *goredis.Message, out chan<- *Message, dropped *atomic.Int64) {
	defer close(out)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			select {
			case out <- &Message{Channel: msg.Channel, Payload: msg.Payload}:
			default:
				dropped.Add(1)
			}
		}
	}
}
