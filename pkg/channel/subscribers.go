package channel

import (
	"context"
	"sync"
)

type subscriber struct {
	ch   chan Event
	done chan struct{}
	once sync.Once
}

// fanout delivers events to subscribers in order.
// Delivery blocks on a full subscriber until it drains or unsubscribes.
type fanout struct {
	mu     sync.RWMutex
	subs   map[int]*subscriber
	nextID int
}

func newFanout() *fanout {
	return &fanout{subs: make(map[int]*subscriber)}
}

func (f *fanout) subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	s := &subscriber{
		ch:   make(chan Event, buffer),
		done: make(chan struct{}),
	}

	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = s
	f.mu.Unlock()

	cancel := func() {
		s.once.Do(func() { close(s.done) })
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
	return s.ch, cancel
}

func (f *fanout) publish(ctx context.Context, ev Event) {
	f.mu.RLock()
	subs := make([]*subscriber, 0, len(f.subs))
	for _, s := range f.subs {
		subs = append(subs, s)
	}
	f.mu.RUnlock()

	for _, s := range subs {
		select {
		case s.ch <- ev:
		case <-s.done:
		case <-ctx.Done():
			return
		}
	}
}

func (f *fanout) len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}
