package storage

import (
	"bytes"
	"slices"
	"strings"
	"sync"
)

// MemoryBackend keeps every bucket in a map. Nothing is persisted; it backs
// tests and throwaway runs.
type MemoryBackend struct {
	mu      sync.RWMutex
	buckets map[string]map[string][]byte
	// writer serialises Update calls so a write transaction observes no
	// interleaved writers, like bbolt's single writer.
	writer sync.Mutex
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{buckets: make(map[string]map[string][]byte)}
}

// Update runs fn as the only writer. A failing fn does not roll back the
// writes it already made.
func (m *MemoryBackend) Update(fn func(tx Transaction) error) error {
	m.writer.Lock()
	defer m.writer.Unlock()
	return fn(&memoryTransaction{backend: m})
}

// View runs fn concurrently with other readers and the writer.
func (m *MemoryBackend) View(fn func(tx Transaction) error) error {
	return fn(&memoryTransaction{backend: m})
}

// Close is a no-op.
func (m *MemoryBackend) Close() error {
	return nil
}

type memoryTransaction struct {
	backend *MemoryBackend
}

func (t *memoryTransaction) CreateBucket(name []byte) error {
	m := t.backend
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.buckets[string(name)]; !ok {
		m.buckets[string(name)] = make(map[string][]byte)
	}
	return nil
}

func (t *memoryTransaction) DeleteBucket(name []byte) error {
	m := t.backend
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.buckets, string(name))
	return nil
}

func (t *memoryTransaction) Bucket(name []byte) Bucket {
	m := t.backend
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries, ok := m.buckets[string(name)]
	if !ok {
		return nil
	}
	return &memoryBucket{mu: &m.mu, entries: entries}
}

func (t *memoryTransaction) ForEachBucket(fn func(name []byte) error) error {
	m := t.backend
	m.mu.RLock()
	names := make([]string, 0, len(m.buckets))
	for name := range m.buckets {
		names = append(names, name)
	}
	m.mu.RUnlock()

	slices.Sort(names)
	for _, name := range names {
		if err := fn([]byte(name)); err != nil {
			return err
		}
	}
	return nil
}

// memoryBucket shares the backend lock; entries stays valid after the bucket
// is deleted but is then no longer reachable from the backend.
type memoryBucket struct {
	mu      *sync.RWMutex
	entries map[string][]byte
}

func (b *memoryBucket) Put(key, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[string(key)] = bytes.Clone(value)
	return nil
}

func (b *memoryBucket) Get(key []byte) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.entries[string(key)], nil
}

func (b *memoryBucket) Delete(key []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, string(key))
	return nil
}

func (b *memoryBucket) ForEach(fn func(k, v []byte) error) error {
	return b.each(nil, fn)
}

func (b *memoryBucket) ForEachPrefix(prefix []byte, fn func(k, v []byte) error) error {
	p := string(prefix)
	return b.each(func(k string) bool { return strings.HasPrefix(k, p) }, fn)
}

func (b *memoryBucket) ForEachRange(start, end []byte, fn func(k, v []byte) error) error {
	lo, hi := string(start), string(end)
	return b.each(func(k string) bool { return k >= lo && k < hi }, fn)
}

// each snapshots the entries accepted by match in key order and releases the
// lock before calling fn, so fn may use the bucket.
func (b *memoryBucket) each(match func(k string) bool, fn func(k, v []byte) error) error {
	b.mu.RLock()
	keys := make([]string, 0, len(b.entries))
	for k := range b.entries {
		if match == nil || match(k) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	values := make([][]byte, len(keys))
	for i, k := range keys {
		values[i] = b.entries[k]
	}
	b.mu.RUnlock()

	for i, k := range keys {
		if err := fn([]byte(k), values[i]); err != nil {
			return err
		}
	}
	return nil
}
