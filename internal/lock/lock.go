// Package lock implements the advisory byte-range locking used by commits.
//
// Two layers are combined:
//
//   - an in-process wait set, because POSIX record locks are owned by the
//     process and do not exclude goroutines of the same process from each other
//   - POSIX fcntl record locks (F_SETLKW), which exclude other processes that
//     use the same protocol
//
// The in-process layer guarantees that a process never holds two overlapping
// POSIX locks at once, so releasing one range never drops a lock another
// goroutine still relies on.
package lock

import (
	"context"
	"math"
	"sync"

	"github.com/hupe1980/walfile/internal/span"
)

// WholeFile covers every byte a file can have.
var WholeFile = span.Range{Off: 0, Len: math.MaxInt64}

// Manager hands out range locks on a single file.
type Manager struct {
	fd    uintptr
	posix bool

	mu      sync.Mutex
	held    map[uint64][]span.Range
	nextID  uint64
	changed chan struct{} // closed and replaced on every release
}

// Held is a token for ranges acquired through Manager.Lock.
type Held struct {
	m      *Manager
	id     uint64
	ranges []span.Range
	once   sync.Once
}

// NewManager creates a lock manager for the file behind fd. When posix is
// false only the in-process layer is used.
func NewManager(fd uintptr, posix bool) *Manager {
	return &Manager{
		fd:      fd,
		posix:   posix,
		held:    make(map[uint64][]span.Range),
		changed: make(chan struct{}),
	}
}

// Lock blocks until every range is free in this process, then takes the
// process-level write lock on each of them in ascending order.
//
// The context bounds only the in-process wait; once the POSIX layer is
// reached the call blocks until the kernel grants the lock.
func (m *Manager) Lock(ctx context.Context, ranges []span.Range) (*Held, error) {
	ranges = span.Normalize(ranges)
	if len(ranges) == 0 {
		return &Held{m: m}, nil
	}

	h, err := m.reserve(ctx, ranges)
	if err != nil {
		return nil, err
	}

	if m.posix {
		for i, r := range ranges {
			if err := posixLock(m.fd, r); err != nil {
				for _, prev := range ranges[:i] {
					_ = posixUnlock(m.fd, prev)
				}
				m.release(h.id)
				return nil, err
			}
		}
	}
	return h, nil
}

func (m *Manager) reserve(ctx context.Context, ranges []span.Range) (*Held, error) {
	for {
		m.mu.Lock()
		if !m.conflictsLocked(ranges) {
			h := m.addLocked(ranges)
			m.mu.Unlock()
			return h, nil
		}
		wait := m.changed
		m.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (m *Manager) conflictsLocked(ranges []span.Range) bool {
	for _, other := range m.held {
		if span.AnyOverlap(ranges, other) {
			return true
		}
	}
	return false
}

func (m *Manager) addLocked(ranges []span.Range) *Held {
	m.nextID++
	m.held[m.nextID] = ranges
	return &Held{m: m, id: m.nextID, ranges: ranges}
}

func (m *Manager) release(id uint64) {
	m.mu.Lock()
	delete(m.held, id)
	close(m.changed)
	m.changed = make(chan struct{})
	m.mu.Unlock()
}

// Unlock releases the POSIX locks and then the in-process reservation.
// It is safe to call more than once.
func (h *Held) Unlock() error {
	if h == nil || h.m == nil || len(h.ranges) == 0 {
		return nil
	}
	var firstErr error
	h.once.Do(func() {
		if h.m.posix {
			for _, r := range h.ranges {
				if err := posixUnlock(h.m.fd, r); err != nil && firstErr == nil {
					firstErr = err
				}
			}
		}
		h.m.release(h.id)
	})
	return firstErr
}
