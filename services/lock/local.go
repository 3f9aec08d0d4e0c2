// Package locksvc provides the core.Locker implementations.
package locksvc

import (
	"context"
	"sync"
	"time"

	"github.com/trezcool/schoolfees/core"
)

// LocalLocker is an in-process core.Locker. It only guards a single instance.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]time.Time // {key: expiry}
}

var _ core.Locker = (*LocalLocker)(nil)

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]time.Time)}
}

func (l *LocalLocker) Lock(_ context.Context, key string, ttl time.Duration) (core.Unlocker, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if expiry, ok := l.held[key]; ok && now.Before(expiry) {
		return nil, core.ErrLocked
	}
	expiry := now.Add(ttl)
	l.held[key] = expiry
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		// an expired lock taken again belongs to its new holder
		if l.held[key].Equal(expiry) {
			delete(l.held, key)
		}
		return nil
	}, nil
}
