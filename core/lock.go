package core

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var ErrLocked = errors.New("lock is already held")

type (
	// Unlocker releases a lock obtained from a Locker.
	Unlocker func(ctx context.Context) error

	// Locker hands out named, expiring locks.
	Locker interface {
		// Lock acquires `key` for at most `ttl`. It returns ErrLocked when the key is held by someone else.
		Lock(ctx context.Context, key string, ttl time.Duration) (Unlocker, error)
	}
)

func IsLocked(err error) bool {
	return errors.Cause(err) == ErrLocked
}
