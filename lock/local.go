/*
Package lock provides inventory.Locker implementations.

  - Local: keyed mutex for a single process
  - Redis: bsm/redislock, for several server processes sharing one database

Both block until the key is free or ctx is done.
*/
package lock

import (
	"context"
	"sync"

	"github.com/facinv/closing-engine/inventory"
)

// Local is an in-process keyed lock. The zero value is ready to use.
type Local struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

var _ inventory.Locker = (*Local)(nil)

func NewLocal() *Local {
	return &Local{}
}

func (l *Local) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.slots == nil {
		l.slots = make(map[string]chan struct{})
	}
	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	ch := l.slot(key)
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() { once.Do(func() { <-ch }) }, nil
}
