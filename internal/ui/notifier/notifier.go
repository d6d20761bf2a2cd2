// Package notifier pings SSE listeners when an explorer session changes.
package notifier

import "sync"

// Notifier broadcasts update pings per topic. A topic is an explorer
// session id; listeners receive an empty struct and re-read the session.
type Notifier struct {
	mu        sync.RWMutex
	listeners map[string]map[chan struct{}]struct{}
}

// New creates a new Notifier instance.
func New() *Notifier {
	return &Notifier{
		listeners: make(map[string]map[chan struct{}]struct{}),
	}
}

// Subscribe returns a channel that receives pings for topic.
// The caller must call Unsubscribe when done to prevent goroutine leaks.
func (n *Notifier) Subscribe(topic string) chan struct{} {
	ch := make(chan struct{}, 1)
	n.mu.Lock()
	set, ok := n.listeners[topic]
	if !ok {
		set = make(map[chan struct{}]struct{})
		n.listeners[topic] = set
	}
	set[ch] = struct{}{}
	n.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener channel and closes it.
func (n *Notifier) Unsubscribe(topic string, ch chan struct{}) {
	n.mu.Lock()
	if set, ok := n.listeners[topic]; ok {
		delete(set, ch)
		if len(set) == 0 {
			delete(n.listeners, topic)
		}
	}
	n.mu.Unlock()
	close(ch)
}

// Broadcast pings every listener of topic.
// Non-blocking: if a listener's channel is full, the ping is skipped.
func (n *Notifier) Broadcast(topic string) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for ch := range n.listeners[topic] {
		select {
		case ch <- struct{}{}:
		default:
			// already pending
		}
	}
}

// Listeners returns the number of listeners of topic.
func (n *Notifier) Listeners(topic string) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.listeners[topic])
}
