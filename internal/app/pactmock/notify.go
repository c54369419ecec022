package pactmock

import (
	"sync"
	"time"
)

// notify is a broadcast signal between the replay path and the wait
// endpoint: Wait blocks until the next Notify call or the timeout,
// whichever comes first. Every replayed interaction notifies, so waiting
// pollers re-check their condition as soon as traffic arrives.
type notify struct {
	mu sync.Mutex
	ch chan struct{}
}

func newNotify() *notify {
	return &notify{ch: make(chan struct{})}
}

func (n *notify) Wait(timeout time.Duration) {
	n.mu.Lock()
	ch := n.ch
	n.mu.Unlock()

	select {
	case <-ch:
	case <-time.After(timeout):
	}
}

func (n *notify) Notify() {
	n.mu.Lock()
	close(n.ch)
	n.ch = make(chan struct{})
	n.mu.Unlock()
}
