package workflow

import "sync"

// SessionLocks allows at most one run per identity at a time.
type SessionLocks struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewSessionLocks() *SessionLocks {
	return &SessionLocks{held: make(map[string]struct{})}
}

// TryWithLock runs fn while holding the lock for identity. It returns false
// without calling fn when another run holds the lock.
func (l *SessionLocks) TryWithLock(identity string, fn func() error) (bool, error) {
	l.mu.Lock()
	if _, busy := l.held[identity]; busy {
		l.mu.Unlock()
		return false, nil
	}
	l.held[identity] = struct{}{}
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.held, identity)
		l.mu.Unlock()
	}()
	return true, fn()
}

// Held reports whether a run for identity is in progress.
func (l *SessionLocks) Held(identity string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[identity]
	return ok
}
