package events

import "sync"

// pipe hands bus payloads to a subscription channel. A send blocks until the
// consumer reads or the subscription is cancelled, so nothing is dropped
// while the subscription is live.
type pipe struct {
	ch     chan Message
	done   chan struct{}
	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

func newPipe() *pipe {
	return &pipe{
		ch:   make(chan Message, subscriptionBuffer),
		done: make(chan struct{}),
	}
}

func (p *pipe) send(m Message) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.ch <- m:
	case <-p.done:
	}
}

// close unblocks pending sends, then closes the channel. Safe to call twice.
func (p *pipe) close() {
	p.once.Do(func() {
		close(p.done)
		p.mu.Lock()
		p.closed = true
		close(p.ch)
		p.mu.Unlock()
	})
}
