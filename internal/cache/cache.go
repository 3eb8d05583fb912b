package cache

import (
	"container/list"
	"fmt"
	"log/slog"

	"github.com/pierrec/lz4/v4"
)

// Cache keeps recently used decompressed bundle payloads in memory, lz4
// compressed, evicting the least recently used past a fixed entry count.
type Cache struct {
	capacity int
	order    *list.List // front is most recently used
	entries  map[int]*list.Element
}

type entry struct {
	bundle int
	size   int // decompressed size
	stored bool
	data   []byte
}

// New creates a cache holding up to capacity bundles. A capacity below one
// disables caching.
func New(capacity int) *Cache {
	return &Cache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[int]*list.Element),
	}
}

// Len is the number of cached bundles.
func (c *Cache) Len() int {
	return c.order.Len()
}

// Get returns a copy of the payload cached for the bundle.
func (c *Cache) Get(bundle int) ([]byte, bool, error) {
	el, ok := c.entries[bundle]
	if !ok {
		return nil, false, nil
	}
	c.order.MoveToFront(el)

	e := el.Value.(*entry)
	if e.stored {
		return append([]byte(nil), e.data...), true, nil
	}

	out := make([]byte, e.size)
	read, err := lz4.UncompressBlock(e.data, out)
	if err != nil {
		c.remove(el)
		return nil, false, fmt.Errorf("lz4 decompress bundle %d: %w", bundle, err)
	}
	if read != e.size {
		c.remove(el)
		return nil, false, fmt.Errorf("lz4 decompress bundle %d: got %d bytes, expected %d", bundle, read, e.size)
	}
	return out, true, nil
}

// Put caches payload for the bundle, replacing any previous entry.
func (c *Cache) Put(bundle int, payload []byte) error {
	if c.capacity < 1 {
		return nil
	}
	c.Invalidate(bundle)

	e := &entry{bundle: bundle, size: len(payload)}
	compressed := make([]byte, lz4.CompressBlockBound(len(payload)))
	written, err := lz4.CompressBlock(payload, compressed, nil)
	if err != nil {
		return fmt.Errorf("lz4 compress bundle %d: %w", bundle, err)
	}
	// CompressBlock returns 0 for incompressible input
	if written == 0 || written >= len(payload) {
		e.stored = true
		e.data = append([]byte(nil), payload...)
	} else {
		e.data = compressed[:written]
	}

	c.entries[bundle] = c.order.PushFront(e)
	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		slog.Debug("Evicting cached bundle", "bundle", oldest.Value.(*entry).bundle)
		c.remove(oldest)
	}
	return nil
}

// Invalidate drops the bundle from the cache.
func (c *Cache) Invalidate(bundle int) {
	if el, ok := c.entries[bundle]; ok {
		c.remove(el)
	}
}

func (c *Cache) remove(el *list.Element) {
	delete(c.entries, el.Value.(*entry).bundle)
	c.order.Remove(el)
}
