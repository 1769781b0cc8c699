// Package locks provides mutual exclusion keyed by an arbitrary string, used
// to serialize dedup commits per topic and gesture application per
// (learner, fact) pair.
package locks

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrWaitExceeded is returned by LockWithin when the key could not be
// acquired inside the wait bound.
var ErrWaitExceeded = errors.New("locks: wait bound exceeded")

type entry struct {
	ch   chan struct{}
	refs int
}

type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: make(map[string]*entry)}
}

func (k *KeyedMutex) acquireEntry(key string) *entry {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		k.entries[key] = e
	}
	e.refs++
	return e
}

func (k *KeyedMutex) releaseEntry(key string, e *entry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
}

// Lock blocks until the key is held and returns the unlock func.
func (k *KeyedMutex) Lock(key string) func() {
	e := k.acquireEntry(key)
	e.ch <- struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			k.releaseEntry(key, e)
		})
	}
}

// LockWithin acquires the key or gives up after wait (or earlier context
// cancellation). On success the returned unlock func must be called.
func (k *KeyedMutex) LockWithin(ctx context.Context, key string, wait time.Duration) (func(), error) {
	e := k.acquireEntry(key)
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case e.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-e.ch
				k.releaseEntry(key, e)
			})
		}, nil
	case <-timer.C:
		k.releaseEntry(key, e)
		return nil, ErrWaitExceeded
	case <-ctx.Done():
		k.releaseEntry(key, e)
		return nil, ctx.Err()
	}
}
