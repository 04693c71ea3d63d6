package core

import (
	"strings"
	"sync"
)

// KeyedMutex serializes critical sections sharing the same key while letting
// different keys proceed concurrently. The zero value is ready for use.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sync.Mutex
	waiters int
}

// Lock acquires the lock for key and returns the function releasing it.
func (km *KeyedMutex) Lock(key string) (unlock func()) {
	km.mu.Lock()
	if km.locks == nil {
		km.locks = make(map[string]*keyLock)
	}
	l, ok := km.locks[key]
	if !ok {
		l = new(keyLock)
		km.locks[key] = l
	}
	l.waiters++
	km.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		km.mu.Lock()
		l.waiters--
		if l.waiters == 0 {
			delete(km.locks, key)
		}
		km.mu.Unlock()
	}
}

// Len returns the number of keys currently held or awaited.
func (km *KeyedMutex) Len() int {
	km.mu.Lock()
	defer km.mu.Unlock()
	return len(km.locks)
}

// CompositeKey joins parts into a lock key.
func CompositeKey(parts ...string) string {
	return strings.Join(parts, "\x1f")
}
