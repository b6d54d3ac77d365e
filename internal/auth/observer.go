package auth

import (
	"log/slog"
	"sync"

	"wayfare/cli/internal/logging"
)

// Bus delivers State snapshots to subscribers synchronously, in subscription order.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscriber
	log    *slog.Logger
}

type subscriber struct {
	id uint64
	fn func(State)
}

// NewBus returns an empty bus. A nil logger discards.
func NewBus(log *slog.Logger) *Bus {
	if log == nil {
		log = logging.Discard()
	}
	return &Bus{log: log}
}

// Subscribe registers fn and returns its unsubscribe handle. Calling the handle more
// than once is a no-op.
func (b *Bus) Subscribe(fn func(State)) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscriber{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Len returns the number of active subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish calls every subscriber with st. A panicking subscriber is recovered
// and logged; the remaining subscribers still run.
func (b *Bus) Publish(st State) {
	b.mu.RLock()
	subs := make([]subscriber, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		b.deliver(s, st)
	}
}

func (b *Bus) deliver(s subscriber, st State) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("auth state subscriber panicked", "subscriber", s.id, "panic", r)
		}
	}()
	s.fn(st)
}
