// Package cache provides a bounded LRU of reconstructed pack objects,
// shared across every pack opened from the same store so a base object
// decoded once for one delta chain can be reused when another chain needs
// the same base.
package cache

import (
	"container/list"
	"sync"

	"github.com/dietcache/vcscore/object"
)

// Byte-size helpers for sizing a Cache.
const (
	Byte = 1 << (iota * 10)
	KiByte
	MiByte
	GiByte
)

// Key identifies one decoded object: the pack it came from and its byte
// offset within that pack. Two packs may reuse the same offset, so PackID
// must be stable and unique per pack (its trailing hash, typically).
type Key struct {
	PackID string
	Offset int64
}

// Recorder observes cache activity. Wire it to a metrics backend (the
// Prometheus recorder in this package, or a test double); nil disables
// observation.
type Recorder interface {
	Hit()
	Miss()
	Evict()
}

type entry struct {
	key  Key
	kind object.Kind
	data []byte
}

// Cache is a byte-budgeted, least-recently-used cache of decoded objects.
// It is safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	maxBytes int64
	curBytes int64
	ll       *list.List
	index    map[Key]*list.Element
	rec      Recorder
}

// New creates a Cache that evicts least-recently-used entries once the
// total size of cached payloads exceeds maxBytes. rec may be nil.
func New(maxBytes int64, rec Recorder) *Cache {
	return &Cache{
		maxBytes: maxBytes,
		ll:       list.New(),
		index:    make(map[Key]*list.Element),
		rec:      rec,
	}
}

// Get returns the cached object for key, promoting it to most-recently-used
// on a hit.
func (c *Cache) Get(key Key) (object.Kind, []byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[key]
	if !ok {
		if c.rec != nil {
			c.rec.Miss()
		}
		return 0, nil, false
	}
	c.ll.MoveToFront(el)
	if c.rec != nil {
		c.rec.Hit()
	}
	e := el.Value.(*entry)
	return e.kind, e.data, true
}

// Put inserts or refreshes the cached object for key, evicting
// least-recently-used entries as needed to stay within the byte budget.
func (c *Cache) Put(key Key, kind object.Kind, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[key]; ok {
		c.ll.MoveToFront(el)
		e := el.Value.(*entry)
		c.curBytes += int64(len(data)) - int64(len(e.data))
		e.data = data
		e.kind = kind
		c.evictToFit()
		return
	}

	e := &entry{key: key, kind: kind, data: data}
	el := c.ll.PushFront(e)
	c.index[key] = el
	c.curBytes += int64(len(data))
	c.evictToFit()
}

func (c *Cache) evictToFit() {
	for c.maxBytes > 0 && c.curBytes > c.maxBytes {
		el := c.ll.Back()
		if el == nil {
			return
		}
		c.ll.Remove(el)
		e := el.Value.(*entry)
		delete(c.index, e.key)
		c.curBytes -= int64(len(e.data))
		if c.rec != nil {
			c.rec.Evict()
		}
	}
}

// Len returns the number of entries currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}
