// Package cache provides a small TTL key-value cache abstraction.
// This is part of the platform layer and contains no business logic.
package cache

import (
	"context"
	"sync"
	"time"
)

// Cache is a string-keyed byte cache with per-entry TTL. Lookups past the
// TTL behave as a miss; concurrent last-writer-wins semantics are acceptable
// for all current uses (idempotent lookup results only).
type Cache interface {
	// Get returns the cached value, or ok=false on miss or expiry.
	Get(ctx context.Context, key string) (value []byte, ok bool)
	// Set stores value under key for ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}

type memoryEntry struct {
	value  []byte
	expiry time.Time
}

// Memory is an in-process Cache with expire-on-read eviction.
// The clock is injectable for tests.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemory creates an in-memory cache using the real clock.
func NewMemory() *Memory {
	return NewMemoryWithClock(time.Now)
}

// NewMemoryWithClock creates an in-memory cache with a custom clock.
func NewMemoryWithClock(now func() time.Time) *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		now:     now,
	}
}

// Get returns the cached value; an expired entry is removed and reported as a miss.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if m.now().After(entry.expiry) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return nil, false
	}

	return entry.value, true
}

// Set stores value under key for ttl.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	m.mu.Lock()
	m.entries[key] = memoryEntry{value: value, expiry: m.now().Add(ttl)}
	m.mu.Unlock()
}

// Compile-time check that Memory implements Cache.
var _ Cache = (*Memory)(nil)
