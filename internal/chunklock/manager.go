// Package chunklock implements the per-chunk-key mutual exclusion manager
// (§4.F): a bounded-LRU map with stale-lock reaping, preventing concurrent
// writes to the same chunk within a process.
package chunklock

import (
	"container/list"
	"sync"
	"time"

	"github.com/edgestream/videocache/internal/infrastructure/metrics"
)

const (
	// MaxEntries bounds the LRU (§4.F).
	MaxEntries = 500
	// TTL is how long a lock may be held before the sweeper force-releases
	// it (§4.F, §5).
	TTL = 30 * time.Second
	// SweepInterval is how often the background sweeper runs (§4.F, §5).
	SweepInterval = 5 * time.Second
)

type entry struct {
	key        string
	acquiredAt time.Time
	waiters    chan struct{} // closed on release
	released   bool
}

// Manager is a process-local bounded-LRU chunk lock table. It is NOT a
// distributed lock: correctness of concurrent writers across processes
// depends on write-idempotence plus the KV store's last-writer-wins
// semantics and strict read-time integrity checks (§4.F).
type Manager struct {
	mu       sync.Mutex
	entries  map[string]*list.Element // key -> LRU element
	order    *list.List               // front = most recently used
	stopCh   chan struct{}
	stopOnce sync.Once

	evictions int64
}

// New creates a Manager and starts its background sweeper.
func New() *Manager {
	m := &Manager{
		entries: make(map[string]*list.Element),
		order:   list.New(),
		stopCh:  make(chan struct{}),
	}
	go m.sweepLoop()
	return m
}

// Release signals waiters and removes the lock, at most once.
type Release func()

// Acquire blocks until key is free, then holds the lock and returns a
// release function. If a live lock exists for key, it awaits completion
// before inserting a new one — so a second waiter only proceeds after the
// first releases (§8 property 5).
func (m *Manager) Acquire(key string) Release {
	start := time.Now()
	for {
		m.mu.Lock()
		if el, ok := m.entries[key]; ok {
			e := el.Value.(*entry)
			waiters := e.waiters
			m.mu.Unlock()
			<-waiters
			continue
		}

		e := &entry{key: key, acquiredAt: time.Now(), waiters: make(chan struct{})}
		el := m.order.PushFront(e)
		m.entries[key] = el
		m.evictIfOverCapacityLocked()
		m.mu.Unlock()

		metrics.ChunkLockWaitSeconds.Observe(time.Since(start).Seconds())
		return m.releaseFunc(key, e)
	}
}

func (m *Manager) releaseFunc(key string, e *entry) Release {
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			m.releaseLocked(key, e)
		})
	}
}

// releaseLocked closes waiters and removes the entry if it is still the
// live one for key (an eviction may have already removed it).
func (m *Manager) releaseLocked(key string, e *entry) {
	if e.released {
		return
	}
	e.released = true
	close(e.waiters)

	if el, ok := m.entries[key]; ok && el.Value.(*entry) == e {
		m.order.Remove(el)
		delete(m.entries, key)
	}
}

// evictIfOverCapacityLocked evicts the least-recently-used entry when the
// table exceeds MaxEntries. Evicting a live lock releases its waiters.
func (m *Manager) evictIfOverCapacityLocked() {
	for len(m.entries) > MaxEntries {
		back := m.order.Back()
		if back == nil {
			return
		}
		e := back.Value.(*entry)
		m.order.Remove(back)
		delete(m.entries, e.key)
		if !e.released {
			e.released = true
			close(e.waiters)
			m.evictions++
			metrics.ChunkLockEvictionsTotal.Inc()
		}
	}
}

func (m *Manager) sweepLoop() {
	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.sweepStale()
		}
	}
}

func (m *Manager) sweepStale() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var stale []*list.Element
	for el := m.order.Back(); el != nil; el = el.Prev() {
		e := el.Value.(*entry)
		if now.Sub(e.acquiredAt) >= TTL {
			stale = append(stale, el)
		}
	}
	for _, el := range stale {
		e := el.Value.(*entry)
		m.order.Remove(el)
		delete(m.entries, e.key)
		if !e.released {
			e.released = true
			close(e.waiters)
		}
	}
}

// Len reports the current number of held locks, for diagnostics/metrics.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Evictions reports the cumulative number of capacity-driven evictions.
func (m *Manager) Evictions() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.evictions
}

// Stop halts the background sweeper. Safe to call multiple times.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
}
