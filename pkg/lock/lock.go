// Package lock provides per-run mutual exclusion for the execution state machine.
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrHeld is returned by TryLock when another holder owns the key.
var ErrHeld = errors.New("lock is held")

// Locker hands out non-blocking exclusive locks keyed by string.
type Locker interface {
	// TryLock acquires key or fails immediately with ErrHeld.
	TryLock(ctx context.Context, key string) (Unlocker, error)
}

// Unlocker releases a lock acquired with TryLock.
type Unlocker interface {
	Unlock(ctx context.Context) error
}

// Memory is a process-local Locker.
type Memory struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewMemory creates an empty in-process locker.
func NewMemory() *Memory {
	return &Memory{held: make(map[string]struct{})}
}

func (m *Memory) TryLock(_ context.Context, key string) (Unlocker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.held[key]; ok {
		return nil, ErrHeld
	}

	m.held[key] = struct{}{}

	return &memoryLock{parent: m, key: key}, nil
}

// Held reports whether key is currently locked.
func (m *Memory) Held(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.held[key]

	return ok
}

type memoryLock struct {
	parent *Memory
	key    string
	once   sync.Once
}

func (l *memoryLock) Unlock(_ context.Context) error {
	l.once.Do(func() {
		l.parent.mu.Lock()
		delete(l.parent.held, l.key)
		l.parent.mu.Unlock()
	})

	return nil
}
