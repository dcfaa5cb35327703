// Package cmap provides a concurrent map keyed by strings.
//
// Keys are spread over a power-of-two number of shards by their murmur3
// hash. Each shard is a plain map guarded by its own RWMutex, so readers
// of different shards never contend.
//
// Usage:
//
//	m := cmap.New[[]byte]()
//	m.Set("key", value)
//	val, ok := m.Get("key")
//
// Range visits shards one at a time and therefore does not observe a
// consistent snapshot of the whole map.
package cmap
