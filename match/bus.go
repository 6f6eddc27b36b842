package match

import "sync"

// Subscriber receives notifications. Notify is called from the authority
// goroutine and must not block.
type Subscriber interface {
	Notify(n Notification)
}


// Bus fans notifications out to subscribers
type Bus struct {
	mu   sync.RWMutex
	subs []subscription
	next uint64
}

type subscription struct {
	id  uint64
	sub Subscriber
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers s. The returned func removes it and must be called when
// the subscriber's owner is torn down; calling it more than once is safe.
func (b *Bus) Subscribe(s Subscriber) (unsubscribe func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs = append(b.subs, subscription{id: id, sub: s})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, e := range b.subs {
				if e.id == id {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Publish delivers n to every subscriber in subscription order
func (b *Bus) Publish(n Notification) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, e := range b.subs {
		e.sub.Notify(n)
	}
}

// Len returns the number of live subscribers
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
