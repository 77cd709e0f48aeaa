package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/muon-protocol/factgpt-examples/internal/domain"
)

// LockManager is an in-process single-writer lock with expiring leases. It
// fails fast like the Redis implementation instead of waiting for the holder.
type LockManager struct {
	mu    sync.Mutex
	held  map[string]lease
	seq   uint64
	clock func() time.Time
}

type lease struct {
	token   uint64
	expires time.Time
}

// NewLockManager creates an empty LockManager.
func NewLockManager() *LockManager {
	return &LockManager{
		held:  make(map[string]lease),
		clock: time.Now,
	}
}

// Acquire takes the lock for key. It returns domain.ErrLockHeld while another
// unexpired lease exists. The returned unlock only releases this lease.
func (m *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	if l, ok := m.held[key]; ok && now.Before(l.expires) {
		return nil, fmt.Errorf("memory: acquire lock %s: %w", key, domain.ErrLockHeld)
	}
	m.seq++
	token := m.seq
	m.held[key] = lease{token: token, expires: now.Add(ttl)}

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if l, ok := m.held[key]; ok && l.token == token {
			delete(m.held, key)
		}
	}, nil
}

var _ domain.LockManager = (*LockManager)(nil)
