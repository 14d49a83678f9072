// Package lock provides per-key mutual exclusion. Conversation turns take the
// lock for their character so that turns on one character never interleave,
// while turns on different characters run in parallel.
package lock

import (
	"context"
	"strconv"
	"sync"
)

// Unlock releases a held lock. It is safe to call more than once.
type Unlock func()

// Locker grants exclusive access to a key until the returned Unlock is called
type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}

// CharacterKey is the lock key for one character's timeline
func CharacterKey(characterID uint) string {
	return "character:" + strconv.FormatUint(uint64(characterID), 10)
}

// KeyedMutex is an in-process Locker. Idle keys are dropped so the map only
// holds keys with a holder or waiters.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	// sem has capacity one; holding the slot is holding the lock
	sem  chan struct{}
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*entry)}
}

// Lock blocks until the key is free or ctx is done
func (m *KeyedMutex) Lock(ctx context.Context, key string) (Unlock, error) {
	m.mu.Lock()
	e, ok := m.locks[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		m.locks[key] = e
	}
	e.refs++
	m.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		m.release(key, e, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { m.release(key, e, true) })
	}, nil
}

func (m *KeyedMutex) release(key string, e *entry, held bool) {
	if held {
		<-e.sem
	}
	m.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(m.locks, key)
	}
	m.mu.Unlock()
}

// size is the number of tracked keys
func (m *KeyedMutex) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
