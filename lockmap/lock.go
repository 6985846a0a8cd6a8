// Package lockmap provides one mutual-exclusion lock per uint64 key.
//
// Keys are device ids in this module: every call into a mounted session holds
// the lock for that session's device. Only keys that are held or waited on
// occupy memory; the states are spread over NSHARD shards by key.
package lockmap

import (
	"sync"
)

type lockState struct {
	held    bool
	waiters uint64
	cond    *sync.Cond
}

type lockShard struct {
	mu    sync.Mutex
	state map[uint64]*lockState
}

func mkLockShard() *lockShard {
	return &lockShard{state: make(map[uint64]*lockState)}
}

// get returns the state for key, creating it. Caller holds sh.mu.
func (sh *lockShard) get(key uint64) *lockState {
	st, ok := sh.state[key]
	if !ok {
		st = &lockState{cond: sync.NewCond(&sh.mu)}
		sh.state[key] = st
	}
	return st
}

func (sh *lockShard) acquire(key uint64) {
	sh.mu.Lock()
	st := sh.get(key)
	for st.held {
		st.waiters++
		st.cond.Wait()
		st.waiters--
	}
	st.held = true
	sh.mu.Unlock()
}

func (sh *lockShard) tryAcquire(key uint64) bool {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	st := sh.get(key)
	if st.held {
		return false
	}
	st.held = true
	return true
}

func (sh *lockShard) release(key uint64) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	st, ok := sh.state[key]
	if !ok || !st.held {
		panic("lockmap: release of unheld key")
	}
	st.held = false
	if st.waiters > 0 {
		st.cond.Signal()
		return
	}
	delete(sh.state, key)
}

func (sh *lockShard) isHeld(key uint64) bool {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	st, ok := sh.state[key]
	return ok && st.held
}

const NSHARD uint64 = 43

type LockMap struct {
	shards []*lockShard
}

func MkLockMap() *LockMap {
	shards := make([]*lockShard, NSHARD)
	for i := range shards {
		shards[i] = mkLockShard()
	}
	return &LockMap{shards: shards}
}

func (lmap *LockMap) shard(key uint64) *lockShard {
	return lmap.shards[key%NSHARD]
}

func (lmap *LockMap) Acquire(key uint64) {
	lmap.shard(key).acquire(key)
}

// TryAcquire takes the lock for key only if nobody holds it.
func (lmap *LockMap) TryAcquire(key uint64) bool {
	return lmap.shard(key).tryAcquire(key)
}

// Release panics if key is not held.
func (lmap *LockMap) Release(key uint64) {
	lmap.shard(key).release(key)
}

func (lmap *LockMap) IsHeld(key uint64) bool {
	return lmap.shard(key).isHeld(key)
}

// Do runs f holding the lock for key.
func (lmap *LockMap) Do(key uint64, f func()) {
	lmap.Acquire(key)
	defer lmap.Release(key)
	f()
}
