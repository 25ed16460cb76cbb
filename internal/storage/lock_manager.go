// internal/storage/lock_manager.go
package storage

import (
	"context"
	"sync"
)

// LockManager 按键加锁 (FileStorage 以文件路径为键)
// Entries are dropped as soon as nobody holds or waits for them.
type LockManager struct {
	mu    sync.Mutex
	locks map[string]*lockInfo
}

type lockInfo struct {
	slot chan struct{}
	refs int // 持有者加等待者
}

// NewLockManager 创建锁管理器
func NewLockManager() *LockManager {
	return &LockManager{locks: make(map[string]*lockInfo)}
}

// ExecuteWithLock runs fn while holding the lock for key. Waiting for the
// lock gives up when ctx ends.
func (lm *LockManager) ExecuteWithLock(ctx context.Context, key string, fn func() error) error {
	info := lm.acquireRef(key)
	defer lm.releaseRef(key, info)

	select {
	case info.slot <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-info.slot }()

	return fn()
}

// Len reports how many keys currently have a lock entry.
func (lm *LockManager) Len() int {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return len(lm.locks)
}

func (lm *LockManager) acquireRef(key string) *lockInfo {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	info, ok := lm.locks[key]
	if !ok {
		info = &lockInfo{slot: make(chan struct{}, 1)}
		lm.locks[key] = info
	}
	info.refs++
	return info
}

func (lm *LockManager) releaseRef(key string, info *lockInfo) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	info.refs--
	if info.refs == 0 {
		delete(lm.locks, key)
	}
}
