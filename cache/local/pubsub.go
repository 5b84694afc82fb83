package local

import (
	"context"
	"sync"
	"sync/atomic"
)

// LocalMessage is an in-process pub/sub message.
type LocalMessage struct {
	Channel string
	Payload string
}

type subscription struct {
	ch       chan *LocalMessage
	channels []string
	closed   bool
}

// LocalPubSub is an in-process fan-out pub/sub. A slow subscriber loses
// messages rather than blocking the publisher; losses are counted.
type LocalPubSub struct {
	mu       sync.RWMutex
	channels map[string][]*subscription
	bufSize  int
	dropped  atomic.Int64
}

// NewPubSub creates a new LocalPubSub with the given per-subscriber buffer size.
func NewPubSub(bufSize int) *LocalPubSub {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &LocalPubSub{
		channels: make(map[string][]*subscription),
		bufSize:  bufSize,
	}
}

// Publish delivers message to every current subscriber of channel.
func (ps *LocalPubSub) Publish(_ context.Context, channel, message string) error {
	msg := &LocalMessage{Channel: channel, Payload: message}
	// Held across the sends so a concurrent unsubscribe cannot close a
	// channel mid-send.
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	for _, s := range ps.channels[channel] {
		select {
		case s.ch <- msg:
		default:
			ps.dropped.Add(1)
		}
	}
	return nil
}

// Subscribe returns one stream for all of channels and a cancel function.
// The stream is closed by cancel or when ctx ends, whichever comes first;
// cancel may be called more than once.
func (ps *LocalPubSub) Subscribe(ctx context.Context, channels ...string) (<-chan *LocalMessage, func(), error) {
	s := &subscription{ch: make(chan *LocalMessage, ps.bufSize), channels: channels}

	ps.mu.Lock()
	for _, c := range channels {
		ps.channels[c] = append(ps.channels[c], s)
	}
	ps.mu.Unlock()

	cancel := func() { ps.unsubscribe(s) }
	if done := ctx.Done(); done != nil {
		go func() {
			<-done
			cancel()
		}()
	}
	return s.ch, cancel, nil
}

func (ps *LocalPubSub) unsubscribe(s *subscription) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for _, c := range s.channels {
		list := ps.channels[c]
		for i, sub := range list {
			if sub == s {
				list = append(list[:i], list[i+1:]...)
				break
			}
		}
		if len(list) == 0 {
			delete(ps.channels, c)
		} else {
			ps.channels[c] = list
		}
	}
	close(s.ch)
}

// Subscribers returns how many subscriptions listen on channel.
func (ps *LocalPubSub) Subscribers(channel string) int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.channels[channel])
}

// Dropped returns how many messages were lost to full subscriber buffers.
func (ps *LocalPubSub) Dropped() int64 {
	return ps.dropped.Load()
}
