package cache

import (
	"encoding/binary"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// StateCache defines a generic interface for caching amplitude buffers.
type StateCache interface {
	// Get retrieves a copy of the amplitudes stored under key.
	Get(key uint64) ([]complex128, bool)
	// Put stores a copy of amps under key.
	Put(key uint64, amps []complex128)
	// Size returns the number of items in the cache.
	Size() int
}

// Key hashes a qubit count and a canonical program text.
func Key(qubits int, program string) uint64 {
	d := xxhash.New()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(qubits))
	_, _ = d.Write(buf[:])
	_, _ = d.WriteString(program)
	return d.Sum64()
}

// MapCache is a simple in-memory implementation of StateCache. Once it holds
// maxEntries items, each Put of a new key evicts an arbitrary entry.
type MapCache struct {
	data       map[uint64][]complex128
	maxEntries int
	mu         sync.RWMutex
}

// NewMapCache creates a cache. maxEntries <= 0 means unbounded.
func NewMapCache(maxEntries int) *MapCache {
	return &MapCache{
		data:       make(map[uint64][]complex128),
		maxEntries: maxEntries,
	}
}

func (c *MapCache) Get(key uint64) ([]complex128, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// Return copy to avoid modification of cached value
	if v, ok := c.data[key]; ok {
		dst := make([]complex128, len(v))
		copy(dst, v)
		return dst, true
	}
	return nil, false
}

func (c *MapCache) Put(key uint64, amps []complex128) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.data[key]; !exists && c.maxEntries > 0 && len(c.data) >= c.maxEntries {
		for k := range c.data {
			delete(c.data, k)
			break
		}
	}

	// Store copy
	dst := make([]complex128, len(amps))
	copy(dst, amps)
	c.data[key] = dst
}

func (c *MapCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}
