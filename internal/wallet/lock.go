package wallet

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// keyedMutex serializes ledger writers per wallet inside one process. The row
// lock taken in LockByID covers writers in other processes.
type keyedMutex struct {
	mu    sync.Mutex
	slots map[uuid.UUID]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{slots: make(map[uuid.UUID]*slot)}
}

// Lock blocks until the key is free or ctx is done. The returned func releases it.
func (k *keyedMutex) Lock(ctx context.Context, key uuid.UUID) (func(), error) {
	k.mu.Lock()
	s, ok := k.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		k.slots[key] = s
	}
	s.refs++
	k.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { k.unlock(key, s) }) }, nil
	case <-ctx.Done():
		k.drop(key, s)
		return nil, ctx.Err()
	}
}

func (k *keyedMutex) unlock(key uuid.UUID, s *slot) {
	<-s.ch
	k.drop(key, s)
}

func (k *keyedMutex) drop(key uuid.UUID, s *slot) {
	k.mu.Lock()
	defer k.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(k.slots, key)
	}
}
