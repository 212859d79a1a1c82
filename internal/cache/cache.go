// Copyright 2015 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cache implements the bounded in-process LRU the storage manager
// uses to cut down on round trips to the backend. Unlike internal/lrucache
// style caches elsewhere in the gcsfuse family, which bound capacity by
// estimated byte size, this cache is bounded strictly by entry count: it
// holds at most C entries, where each entry is either a positive cached
// object or a tombstone recording a confirmed backend miss.
package cache

import (
	"container/list"
	"sync"

	"github.com/hierfs/hierfs/internal/object"
)

// Entry is the value stored for a single key. Exactly one of Object or
// Tombstone is meaningful: a tombstone entry records that the backend has
// confirmed the key does not exist, so repeated negative lookups need not
// re-query the backend.
type Entry struct {
	Object    object.Object
	Tombstone bool
}

type node struct {
	key   string
	entry Entry
}

// Cache is a fixed-capacity, entry-count-bounded LRU cache, safe for
// concurrent use. The zero value is not usable; construct with New.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[string]*list.Element
}

// New returns a cache that holds at most capacity entries. capacity must be
// positive.
func New(capacity int) *Cache {
	if capacity <= 0 {
		panic("cache: capacity must be positive")
	}
	return &Cache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[string]*list.Element, capacity),
	}
}

// Get looks up key. If present (positive or tombstone), the entry is moved
// to the most-recently-used position and returned with ok set. This is the
// cache's only promoting operation: both the path resolver and the object
// fetch path must route all reads through Get so that recency reflects
// actual access order.
func (c *Cache) Get(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return Entry{}, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*node).entry, true
}

// Peek looks up key without affecting its recency. Used by diagnostics and
// tests that need to inspect cache state without disturbing it.
func (c *Cache) Peek(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return Entry{}, false
	}
	return el.Value.(*node).entry, true
}

// Put inserts or replaces the entry for key.
//
// If key is not already present, the new entry is inserted at the
// most-recently-used position, evicting the least-recently-used entry if
// the cache is at capacity.
//
// If key is already present, its value is replaced in place but its
// recency position is left unchanged: a write-driven replacement is not a
// read and must not count as one, or a key that is written frequently but
// never read would be artificially protected from eviction.
//
// Put returns the key of an entry evicted to make room, if any.
func (c *Cache) Put(key string, entry Entry) (evictedKey string, evicted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value.(*node).entry = entry
		return "", false
	}

	el := c.ll.PushFront(&node{key: key, entry: entry})
	c.items[key] = el

	if c.ll.Len() > c.capacity {
		back := c.ll.Back()
		if back != nil {
			c.ll.Remove(back)
			ev := back.Value.(*node)
			delete(c.items, ev.key)
			return ev.key, true
		}
	}
	return "", false
}

// Invalidate removes any entry (positive or tombstone) for key. It is a
// no-op if key is not present.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return
	}
	c.ll.Remove(el)
	delete(c.items, key)
}

// Len returns the number of entries currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}
