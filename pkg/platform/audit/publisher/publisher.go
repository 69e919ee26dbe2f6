// Package publisher delivers domain events to an audit store and to in-process
// subscribers such as the administrator event stream.
package publisher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	id "crowdfund/pkg/domain"
	audit "crowdfund/pkg/platform/audit"
	"crowdfund/pkg/platform/tx"
)

// Publisher appends events to a store and fans them out to subscribers.
// Emit returns the store error so a failed append aborts the caller's
// transaction; subscribers only see events whose transaction committed.
type Publisher struct {
	store  audit.Store
	logger *slog.Logger
	now    func() time.Time

	mu          sync.RWMutex
	subscribers map[int]chan audit.Event
	nextSubID   int
	closed      bool
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithClock injects the time source used to stamp events.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		if now != nil {
			p.now = now
		}
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:       store,
		now:         time.Now,
		subscribers: make(map[int]chan audit.Event),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit records an event. The timestamp, id and category are filled when unset.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	event = audit.Prepare(event, p.now())
	if err := p.store.Append(ctx, event); err != nil {
		return err
	}
	tx.AfterCommit(ctx, func() { p.broadcast(event) })
	return nil
}

// Subscribe registers an observer. Events are delivered without blocking the
// publisher; a subscriber that falls more than buffer events behind misses
// events. The returned cancel func unregisters and closes the channel.
func (p *Publisher) Subscribe(buffer int) (<-chan audit.Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan audit.Event, buffer)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		close(ch)
		return ch, func() {}
	}
	subID := p.nextSubID
	p.nextSubID++
	p.subscribers[subID] = ch

	return ch, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if sub, ok := p.subscribers[subID]; ok {
			delete(p.subscribers, subID)
			close(sub)
		}
	}
}

func (p *Publisher) broadcast(event audit.Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, ch := range p.subscribers {
		select {
		case ch <- event:
		default:
			if p.logger != nil {
				p.logger.Warn("dropping event for slow subscriber", "action", event.Action)
			}
		}
	}
}

// List returns stored events about identity, oldest first.
func (p *Publisher) List(ctx context.Context, identity id.Identity) ([]audit.Event, error) {
	return p.store.ListByIdentity(ctx, identity)
}

// Recent returns up to limit stored events, newest first.
func (p *Publisher) Recent(ctx context.Context, limit int) ([]audit.Event, error) {
	return p.store.ListRecent(ctx, limit)
}

// Close ends every subscription. Later Subscribe calls get a closed channel.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for subID, ch := range p.subscribers {
		delete(p.subscribers, subID)
		close(ch)
	}
}
