package app

import "sync"

// NoticeLevel selects how a notice is presented.
type NoticeLevel string

const (
	NoticeSuccess NoticeLevel = "success"
	NoticeError   NoticeLevel = "error"
	NoticeInfo    NoticeLevel = "info"
	NoticeWarning NoticeLevel = "warning"
)

// Notice is a titled, dismissible message for one user.
type Notice struct {
	Level NoticeLevel `json:"level"`
	Title string      `json:"title"`
	Text  string      `json:"text"`
}

// Hub fans per-user updates out to every subscriber of that user.
type Hub[T any] struct {
	mu          sync.Mutex
	size        int
	subscribers map[string]map[chan T]struct{}
}

// NewHub buffers size updates per subscriber.
func NewHub[T any](size int) *Hub[T] {
	if size <= 0 {
		size = 1
	}
	return &Hub[T]{size: size, subscribers: make(map[string]map[chan T]struct{})}
}

// Subscribe returns a channel of the user's updates.
// The caller must invoke the returned cancel function to avoid leaks.
func (h *Hub[T]) Subscribe(userID string) (<-chan T, func()) {
	ch := make(chan T, h.size)

	h.mu.Lock()
	subs, ok := h.subscribers[userID]
	if !ok {
		subs = make(map[chan T]struct{})
		h.subscribers[userID] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		subs := h.subscribers[userID]
		if _, ok := subs[ch]; !ok {
			return
		}
		delete(subs, ch)
		close(ch)
		if len(subs) == 0 {
			delete(h.subscribers, userID)
		}
	}
	return ch, cancel
}

// Publish delivers v to the user's subscribers. A full subscriber loses its
// oldest pending update instead of blocking the publisher.
func (h *Hub[T]) Publish(userID string, v T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers[userID] {
		select {
		case ch <- v:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- v
		}
	}
}

// Subscribers returns the number of open subscriptions for the user.
func (h *Hub[T]) Subscribers(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[userID])
}
