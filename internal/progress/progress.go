package progress

import (
	"context"
	"sync"
	"time"
)

// UnknownStatus is returned for job ids the tracker has never seen.
const UnknownStatus = "Unknown request"

// Tracker is a concurrency-safe mapping from job id to its latest
// human-readable status. Last write wins; no history is kept.
type Tracker interface {
	Set(ctx context.Context, jobID, status string)
	Get(ctx context.Context, jobID string) string
}

type entry struct {
	status  string
	updated time.Time
}

// Memory is the in-process Tracker. Entries older than the TTL are swept by
// a background janitor so the map cannot grow without bound.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
	done    chan struct{}
	once    sync.Once
}

// NewMemory creates a memory tracker. A non-positive ttl disables eviction.
func NewMemory(ttl time.Duration) *Memory {
	m := &Memory{
		entries: make(map[string]entry),
		ttl:     ttl,
		done:    make(chan struct{}),
	}
	if ttl > 0 {
		go m.janitor()
	}
	return m
}

func (m *Memory) Set(_ context.Context, jobID, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[jobID] = entry{status: status, updated: time.Now()}
}

func (m *Memory) Get(_ context.Context, jobID string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.entries[jobID]; ok {
		return e.status
	}
	return UnknownStatus
}

// Close stops the janitor. Safe to call more than once.
func (m *Memory) Close() {
	m.once.Do(func() { close(m.done) })
}

func (m *Memory) janitor() {
	ticker := time.NewTicker(m.ttl / 4)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case now := <-ticker.C:
			m.evictExpired(now)
		}
	}
}

func (m *Memory) evictExpired(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.entries {
		if now.Sub(e.updated) > m.ttl {
			delete(m.entries, id)
		}
	}
}
