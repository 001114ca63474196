package join

import (
	"sync"

	"github.com/Sternrassler/mangadex-client/pkg/manga"
)

// Collection is the append-only list of completed manga together with the
// set of ids ever published. Append order is completion order.
type Collection struct {
	mu       sync.RWMutex
	items    []manga.Manga
	seen     map[string]struct{}
	watchers map[int]chan struct{}
	nextID   int
}

// NewCollection creates an empty collection.
func NewCollection() *Collection {
	return &Collection{
		seen:     make(map[string]struct{}),
		watchers: make(map[int]chan struct{}),
	}
}

// Promote appends m unless its id was published before. It reports whether m
// was appended. The seen check and the append happen under one lock.
func (c *Collection) Promote(m manga.Manga) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, dup := c.seen[m.ID]; dup {
		return false
	}
	c.seen[m.ID] = struct{}{}
	c.items = append(c.items, m)

	for _, w := range c.watchers {
		select {
		case w <- struct{}{}:
		default:
		}
	}
	return true
}

// Len returns the number of published manga.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Seen reports whether id has been published.
func (c *Collection) Seen(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.seen[id]
	return ok
}

// Snapshot returns a copy of the published manga.
func (c *Collection) Snapshot() []manga.Manga {
	return c.Since(0)
}

// Since returns a copy of the manga published at index n and later.
func (c *Collection) Since(n int) []manga.Manga {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if n < 0 {
		n = 0
	}
	if n >= len(c.items) {
		return nil
	}
	out := make([]manga.Manga, len(c.items)-n)
	copy(out, c.items[n:])
	return out
}

// Watch returns a channel that receives a value after one or more appends,
// and a function that stops the notifications. Notifications coalesce: read
// Since(lastLen) after each signal to get every new item.
func (c *Collection) Watch() (<-chan struct{}, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	ch := make(chan struct{}, 1)
	c.watchers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.watchers, id)
			c.mu.Unlock()
		})
	}
}
