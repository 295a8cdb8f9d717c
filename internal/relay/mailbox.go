package relay

import "sync"

// mailbox is an unbounded FIFO queue of commands with a single consumer.
// Producers never block; the consumer is woken through ready.
type mailbox struct {
	mu     sync.Mutex
	items  []command
	ready  chan struct{}
	closed bool
}

func newMailbox() *mailbox {
	return &mailbox{ready: make(chan struct{}, 1)}
}

// push appends cmd and reports whether it was accepted.
func (m *mailbox) push(cmd command) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.items = append(m.items, cmd)
	m.mu.Unlock()

	select {
	case m.ready <- struct{}{}:
	default:
	}
	return true
}

// drain takes every queued command in arrival order.
func (m *mailbox) drain() []command {
	m.mu.Lock()
	defer m.mu.Unlock()

	items := m.items
	m.items = nil
	return items
}

// close rejects further pushes and returns whatever was still queued.
func (m *mailbox) close() []command {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	items := m.items
	m.items = nil
	return items
}
