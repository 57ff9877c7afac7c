package identity

import (
	"log"
	"sync"

	"code-quizzer/internal/domain"
)

// changes fans principal changes out to every subscriber.
type changes struct {
	mu   sync.Mutex
	size int
	subs map[chan domain.AuthChange]struct{}
}

func newChanges(size int) *changes {
	return &changes{size: size, subs: make(map[chan domain.AuthChange]struct{})}
}

func (c *changes) subscribe() (<-chan domain.AuthChange, func()) {
	ch := make(chan domain.AuthChange, c.size)
	c.mu.Lock()
	c.subs[ch] = struct{}{}
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.subs[ch]; ok {
			delete(c.subs, ch)
			close(ch)
		}
	}
	return ch, cancel
}

func (c *changes) publish(change domain.AuthChange) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ch := range c.subs {
		select {
		case ch <- change:
		default:
			log.Printf("[auth] subscriber is full, dropped change for %s", change.UserID)
		}
	}
}
