package mirror

import "sync"

type subscriber struct {
	id uint64
	fn func(View)
}

// subscribers dispatches views synchronously, in registration order.
type subscribers struct {
	mu     sync.RWMutex
	list   []subscriber
	nextID uint64
}

func (s *subscribers) add(fn func(View)) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.list = append(s.list, subscriber{id: s.nextID, fn: fn})
	return s.nextID
}

func (s *subscribers) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.list {
		if sub.id == id {
			s.list = append(s.list[:i], s.list[i+1:]...)
			return
		}
	}
}

func (s *subscribers) snapshot() []subscriber {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]subscriber, len(s.list))
	copy(out, s.list)
	return out
}

// Subscribe registers fn to receive every view change. fn runs on the
// goroutine that caused the change and must not block; it may call View but
// not the mutating methods. The returned func unregisters it.
func (c *Controller) Subscribe(fn func(View)) (cancel func()) {
	id := c.subs.add(fn)
	var once sync.Once
	return func() {
		once.Do(func() { c.subs.remove(id) })
	}
}

// publish sends the current view, not the one that triggered it, so that
// concurrent changes can never leave a subscriber on an older snapshot.
func (c *Controller) publish() {
	subs := c.subs.snapshot()
	if len(subs) == 0 {
		return
	}
	c.pubMu.Lock()
	defer c.pubMu.Unlock()
	view := c.View()
	for _, sub := range subs {
		sub.fn(view)
	}
}
