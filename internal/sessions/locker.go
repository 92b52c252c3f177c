package sessions

import (
	"context"
	"sync"
)

// Locker serializes chat turns per session. Acquisition is non-blocking with
// a short wait queue; overflow is rejected with ErrSessionBusy so a client
// retry does not pile up behind a slow model call.
type Locker struct {
	mu       sync.Mutex
	held     map[string]chan struct{}
	waiters  map[string]int
	maxQueue int
}

// NewLocker creates a session locker. maxQueue is how many turns may wait
// behind the active one before rejection; <= 0 means no waiting at all.
func NewLocker(maxQueue int) *Locker {
	if maxQueue < 0 {
		maxQueue = 0
	}
	return &Locker{
		held:     map[string]chan struct{}{},
		waiters:  map[string]int{},
		maxQueue: maxQueue,
	}
}

// Acquire takes the session lock, waiting in the queue if permitted. The
// returned release function must be called exactly once.
func (l *Locker) Acquire(ctx context.Context, sessionID string) (func(), error) {
	for {
		l.mu.Lock()
		ch, taken := l.held[sessionID]
		if !taken {
			done := make(chan struct{})
			l.held[sessionID] = done
			l.mu.Unlock()
			return func() { l.release(sessionID, done) }, nil
		}
		if l.waiters[sessionID] >= l.maxQueue {
			l.mu.Unlock()
			return nil, ErrSessionBusy
		}
		l.waiters[sessionID]++
		l.mu.Unlock()

		select {
		case <-ch:
			l.dropWaiter(sessionID)
			// Holder released; race for the lock again.
		case <-ctx.Done():
			l.dropWaiter(sessionID)
			return nil, ctx.Err()
		}
	}
}

func (l *Locker) release(sessionID string, done chan struct{}) {
	l.mu.Lock()
	if current, ok := l.held[sessionID]; ok && current == done {
		delete(l.held, sessionID)
	}
	l.mu.Unlock()
	close(done)
}

func (l *Locker) dropWaiter(sessionID string) {
	l.mu.Lock()
	if l.waiters[sessionID] > 0 {
		l.waiters[sessionID]--
	}
	if l.waiters[sessionID] == 0 {
		delete(l.waiters, sessionID)
	}
	l.mu.Unlock()
}
