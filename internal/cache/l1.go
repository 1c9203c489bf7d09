package cache

import (
	"container/list"
	"hash/fnv"
	"sync"
)

// l1Store is a sharded in-memory LRU. Sharding follows the lock-per-
// bucket pattern internal/middleware/ratelimit.go uses for its per-IP
// limiter map (guarded by one mutex), generalised here to N independently
// locked shards, each given an equal slice of the overall byte budget.
type l1Store struct {
	shards []*l1Shard
}

type l1Shard struct {
	mu       sync.Mutex
	items    map[string]*list.Element
	order    *list.List // front = most recently used
	size     int64
	budget   int64
	tagIndex map[string]map[string]struct{}
}

type l1Item struct {
	key   string
	entry *Entry
}

func newL1Store(maxMemory int64, numShards int) *l1Store {
	if numShards < 1 {
		numShards = 1
	}
	budget := maxMemory / int64(numShards)
	shards := make([]*l1Shard, numShards)
	for i := range shards {
		shards[i] = &l1Shard{
			items:    make(map[string]*list.Element),
			order:    list.New(),
			budget:   budget,
			tagIndex: make(map[string]map[string]struct{}),
		}
	}
	return &l1Store{shards: shards}
}

func (s *l1Store) shardFor(key string) *l1Shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

// Get returns the entry for key if present, unexpired, and (when tags is
// non-empty) a superset of tags. A hit moves the entry to the front of
// its shard's LRU order.
func (s *l1Store) Get(key string, tags []string) (*Entry, bool) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	el, ok := sh.items[key]
	if !ok {
		return nil, false
	}
	item := el.Value.(*l1Item)
	if item.entry.Expired() {
		sh.removeLocked(el)
		return nil, false
	}
	if !item.entry.HasAllTags(tags) {
		return nil, false
	}
	sh.order.MoveToFront(el)
	return item.entry, true
}

// Peek is like Get but never mutates LRU order — used by Exists.
func (s *l1Store) Peek(key string) (*Entry, bool) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	el, ok := sh.items[key]
	if !ok {
		return nil, false
	}
	item := el.Value.(*l1Item)
	if item.entry.Expired() {
		sh.removeLocked(el)
		return nil, false
	}
	return item.entry, true
}

// Set inserts or replaces entry, evicting least-recently-used keys from
// the same shard until it fits. Returns false (CacheTooLarge) if entry
// alone exceeds the shard's budget.
func (s *l1Store) Set(entry *Entry) bool {
	need := size(entry)
	sh := s.shardFor(entry.Key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if need > sh.budget {
		return false
	}

	if el, ok := sh.items[entry.Key]; ok {
		old := el.Value.(*l1Item).entry
		sh.size -= size(old)
		sh.untagLocked(entry.Key, old.Tags)
		el.Value = &l1Item{key: entry.Key, entry: entry}
		sh.order.MoveToFront(el)
		sh.size += need
	} else {
		el := sh.order.PushFront(&l1Item{key: entry.Key, entry: entry})
		sh.items[entry.Key] = el
		sh.size += need
	}
	sh.tagLocked(entry.Key, entry.Tags)

	for sh.size > sh.budget {
		back := sh.order.Back()
		if back == nil {
			break
		}
		sh.removeLocked(back)
	}
	return true
}

func (s *l1Store) Delete(key string) bool {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	el, ok := sh.items[key]
	if !ok {
		return false
	}
	sh.removeLocked(el)
	return true
}

func (s *l1Store) Exists(key string) bool {
	_, ok := s.Peek(key)
	return ok
}

func (s *l1Store) Clear() {
	for _, sh := range s.shards {
		sh.mu.Lock()
		sh.items = make(map[string]*list.Element)
		sh.order = list.New()
		sh.size = 0
		sh.tagIndex = make(map[string]map[string]struct{})
		sh.mu.Unlock()
	}
}

// FlushByTags removes every entry whose tags intersect tags and returns
// the removed keys.
func (s *l1Store) FlushByTags(tags []string) []string {
	var removed []string
	for _, sh := range s.shards {
		sh.mu.Lock()
		candidates := make(map[string]struct{})
		for _, t := range tags {
			for k := range sh.tagIndex[t] {
				candidates[k] = struct{}{}
			}
		}
		for k := range candidates {
			if el, ok := sh.items[k]; ok {
				sh.removeLocked(el)
				removed = append(removed, k)
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

func (sh *l1Shard) removeLocked(el *list.Element) {
	item := el.Value.(*l1Item)
	sh.order.Remove(el)
	delete(sh.items, item.key)
	sh.size -= size(item.entry)
	sh.untagLocked(item.key, item.entry.Tags)
}

func (sh *l1Shard) tagLocked(key string, tags []string) {
	for _, t := range tags {
		set, ok := sh.tagIndex[t]
		if !ok {
			set = make(map[string]struct{})
			sh.tagIndex[t] = set
		}
		set[key] = struct{}{}
	}
}

func (sh *l1Shard) untagLocked(key string, tags []string) {
	for _, t := range tags {
		if set, ok := sh.tagIndex[t]; ok {
			delete(set, key)
			if len(set) == 0 {
				delete(sh.tagIndex, t)
			}
		}
	}
}
