package join

import (
	"sort"
	"sync"
	"time"

	"github.com/Sternrassler/mangadex-client/pkg/manga"
	"github.com/cespare/xxhash/v2"
)

// DefaultShards is the number of lock stripes of a ShardedTable.
const DefaultShards = 32

// Entry is one manga waiting for enrichment.
type Entry struct {
	Manga         manga.Manga
	Relationships manga.RelationshipIDs
	RegisteredAt  time.Time
}

// Table is the incomplete-entity table. Every operation on a given id is
// mutually exclusive with every other operation on the same id.
type Table interface {
	// Put inserts or replaces the entry for entry.Manga.ID and reports
	// whether an entry was replaced.
	Put(entry Entry) (replaced bool)

	// Update runs fn on the entry stored under id while holding the id's
	// lock. If fn returns true the entry is removed before the lock is
	// released. Update reports false, without calling fn, when id is absent.
	Update(id string, fn func(entry *Entry) (remove bool)) bool

	// Get returns a copy of the entry stored under id.
	Get(id string) (Entry, bool)

	// Snapshot returns copies of all entries ordered by registration time.
	Snapshot() []Entry

	// Len returns the number of entries.
	Len() int
}

// ShardedTable is a Table striped over independently locked shards so that
// merges for unrelated ids do not contend.
type ShardedTable struct {
	shards []*shard
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

// NewShardedTable creates a table with n shards (DefaultShards if n <= 0).
func NewShardedTable(n int) *ShardedTable {
	if n <= 0 {
		n = DefaultShards
	}
	t := &ShardedTable{shards: make([]*shard, n)}
	for i := range t.shards {
		t.shards[i] = &shard{entries: make(map[string]*Entry)}
	}
	return t
}

func (t *ShardedTable) shardFor(id string) *shard {
	return t.shards[xxhash.Sum64String(id)%uint64(len(t.shards))]
}

// Put implements Table.
func (t *ShardedTable) Put(entry Entry) bool {
	s := t.shardFor(entry.Manga.ID)
	s.mu.Lock()
	defer s.mu.Unlock()

	_, replaced := s.entries[entry.Manga.ID]
	e := entry
	s.entries[entry.Manga.ID] = &e
	return replaced
}

// Update implements Table.
func (t *ShardedTable) Update(id string, fn func(entry *Entry) bool) bool {
	s := t.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return false
	}
	if fn(e) {
		delete(s.entries, id)
	}
	return true
}

// Get implements Table.
func (t *ShardedTable) Get(id string) (Entry, bool) {
	s := t.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Snapshot implements Table.
func (t *ShardedTable) Snapshot() []Entry {
	var out []Entry
	for _, s := range t.shards {
		s.mu.Lock()
		for _, e := range s.entries {
			out = append(out, *e)
		}
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RegisteredAt.Equal(out[j].RegisteredAt) {
			return out[i].Manga.ID < out[j].Manga.ID
		}
		return out[i].RegisteredAt.Before(out[j].RegisteredAt)
	})
	return out
}

// Len implements Table.
func (t *ShardedTable) Len() int {
	n := 0
	for _, s := range t.shards {
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}
