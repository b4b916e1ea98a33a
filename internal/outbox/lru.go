package outbox

import "container/list"

// collectionLRU tracks which vector-store collection names have already had
// EnsureCollection called on them, bounded to maxEntries (§4.6 "LRU of open
// vector-store collection handles"). No LRU library appears anywhere in the
// retrieval pack, so this is built on container/list, the same structure the
// standard library itself recommends for this exact use.
type collectionLRU struct {
	max     int
	list    *list.List
	entries map[string]*list.Element
}

func newCollectionLRU(max int) *collectionLRU {
	if max < 1 {
		max = 1
	}
	return &collectionLRU{max: max, list: list.New(), entries: make(map[string]*list.Element)}
}

// seen reports whether name is already marked ensured, refreshing its
// recency if so.
func (c *collectionLRU) seen(name string) bool {
	el, ok := c.entries[name]
	if !ok {
		return false
	}
	c.list.MoveToFront(el)
	return true
}

// mark records name as ensured, evicting the least recently used entry once
// the cache is at capacity.
func (c *collectionLRU) mark(name string) {
	if c.seen(name) {
		return
	}
	el := c.list.PushFront(name)
	c.entries[name] = el
	if c.list.Len() > c.max {
		oldest := c.list.Back()
		if oldest != nil {
			c.list.Remove(oldest)
			delete(c.entries, oldest.Value.(string))
		}
	}
}
