package events

import (
	"context"
	"errors"
	"sync"
)

var ErrBusClosed = errors.New("event bus closed")

// LocalBus delivers events within one process, in publish order. It serves
// single-instance deployments and tests.
type LocalBus struct {
	pub sync.Mutex // serializes publishers so every subscriber sees one order

	mu     sync.Mutex
	subs   []*subscriber
	closed bool
}

type subscriber struct {
	ch   chan Event
	done chan struct{}
}

func NewLocalBus() *LocalBus {
	return &LocalBus{}
}

// Publish waits for room in every subscriber's buffer. A subscriber that
// goes away while Publish waits is skipped.
func (b *LocalBus) Publish(ctx context.Context, ev Event) error {
	b.pub.Lock()
	defer b.pub.Unlock()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBusClosed
	}
	subs := append([]*subscriber(nil), b.subs...)
	b.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.ch <- ev:
		case <-sub.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (b *LocalBus) Consume(ctx context.Context, handler func(Event) error) error {
	sub := &subscriber{ch: make(chan Event, 256), done: make(chan struct{})}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBusClosed
	}
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	defer b.unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sub.done:
			return nil
		case ev := <-sub.ch:
			_ = handler(ev)
		}
	}
}

func (b *LocalBus) unsubscribe(sub *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			close(sub.done)
			return
		}
	}
}

func (b *LocalBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, sub := range b.subs {
		close(sub.done)
	}
	b.subs = nil
	return nil
}

// Subscribers returns the number of active consumers.
func (b *LocalBus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
