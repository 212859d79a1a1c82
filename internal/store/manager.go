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

// Package store implements the storage manager: the component that turns
// the backend's flat key/value space plus the in-process cache into a
// coherent tree of Objects, with a single write-through discipline that
// every mutation goes through.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jacobsa/timeutil"

	"github.com/hierfs/hierfs/internal/backend"
	"github.com/hierfs/hierfs/internal/cache"
	"github.com/hierfs/hierfs/internal/ferrors"
	"github.com/hierfs/hierfs/internal/metrics"
	"github.com/hierfs/hierfs/internal/object"
)

// Manager is the storage manager. The cache and backend client it wraps do
// their own locking, but Manager holds no lock of its own: the
// invalidate-mutate-insert-persist sequence in write is not atomic with
// respect to a concurrent Fetch or write. Callers serialize operations;
// fsops.Ops does so with a single mutex.
type Manager struct {
	client  backend.Client
	cache   *cache.Cache
	codec   object.Codec
	clock   timeutil.Clock
	metrics *metrics.Handle
}

// New returns a Manager backed by client, caching decoded objects in c.
func New(client backend.Client, c *cache.Cache, clock timeutil.Clock) *Manager {
	return &Manager{client: client, cache: c, codec: object.NewCodec(), clock: clock}
}

// WithMetrics records cache hit/miss metrics and the latency and errors of
// backend Get and Put calls on h for the lifetime of m; backend Delete
// calls are not recorded. It returns m for chaining at construction time.
func (m *Manager) WithMetrics(h metrics.Handle) *Manager {
	m.metrics = &h
	return m
}

func (m *Manager) backendGet(ctx context.Context, id string) ([]byte, bool, error) {
	start := time.Now()
	data, found, err := m.client.Get(ctx, id)
	if m.metrics != nil {
		m.metrics.BackendOpLatency.WithLabelValues("get").Observe(time.Since(start).Seconds())
		if err != nil {
			m.metrics.BackendOpErrors.WithLabelValues("get").Inc()
		}
	}
	return data, found, err
}

func (m *Manager) cachePut(id string, entry cache.Entry) {
	_, evicted := m.cache.Put(id, entry)
	if evicted && m.metrics != nil {
		m.metrics.CacheEvictions.Inc()
	}
}

func (m *Manager) backendPut(ctx context.Context, id string, data []byte) error {
	start := time.Now()
	err := m.client.Put(ctx, id, data)
	if m.metrics != nil {
		m.metrics.BackendOpLatency.WithLabelValues("put").Observe(time.Since(start).Seconds())
		if err != nil {
			m.metrics.BackendOpErrors.WithLabelValues("put").Inc()
		}
	}
	return err
}

// EnsureRoot fetches the root directory object, creating an empty one if
// this is a fresh backend. This is the one-time root discovery/creation
// step the storage manager performs at mount time.
func (m *Manager) EnsureRoot(ctx context.Context) (object.Object, error) {
	root, err := m.Fetch(ctx, backend.RootKey)
	if err == nil {
		return root, nil
	}
	if !isNotFound(err) {
		return object.Object{}, err
	}

	now := m.clock.Now()
	root = object.Object{
		ID:   backend.RootKey,
		Name: "",
		Meta: object.Meta{
			Kind:  object.KindDirectory,
			Perm:  0755,
			Nlink: 2,
			Atime: now,
			Mtime: now,
			Ctime: now,
		},
		Data: object.Data{Children: map[string]string{}},
	}
	if err := m.persistNew(ctx, root); err != nil {
		return object.Object{}, err
	}
	return root, nil
}

// Fetch resolves id to its Object, consulting the cache first. This is the
// cache's only entry point for positive lookups by ID, so every caller
// that needs an up-to-date object (including the path resolver) must go
// through it for cache recency to mean anything.
func (m *Manager) Fetch(ctx context.Context, id string) (object.Object, error) {
	if entry, ok := m.cache.Get(id); ok {
		if m.metrics != nil {
			m.metrics.CacheHits.Inc()
		}
		if entry.Tombstone {
			return object.Object{}, ferrors.Wrap(ferrors.NotFound, "id %q", id)
		}
		return entry.Object, nil
	}
	if m.metrics != nil {
		m.metrics.CacheMisses.Inc()
	}

	data, found, err := m.backendGet(ctx, id)
	if err != nil {
		return object.Object{}, err
	}
	if !found {
		m.cachePut(id, cache.Entry{Tombstone: true})
		return object.Object{}, ferrors.Wrap(ferrors.NotFound, "id %q", id)
	}

	obj, err := m.codec.Decode(data)
	if err != nil {
		return object.Object{}, ferrors.Wrap(ferrors.MalformedObject, "id %q: %v", id, err)
	}
	m.cachePut(id, cache.Entry{Object: obj})
	return obj, nil
}

// persistNew encodes and writes a brand-new object (one with no prior
// cached or backend state) and inserts it into the cache. It does not go
// through the invalidate/revert discipline in write, since there is no
// previous value to protect.
func (m *Manager) persistNew(ctx context.Context, obj object.Object) error {
	data, err := m.codec.Encode(obj)
	if err != nil {
		return fmt.Errorf("store: encode %q: %w", obj.ID, err)
	}
	if err := m.backendPut(ctx, obj.ID, data); err != nil {
		return ferrors.Wrap(ferrors.BackendUnavailable, "create %q: %v", obj.ID, err)
	}
	m.cachePut(obj.ID, cache.Entry{Object: obj})
	return nil
}

// write applies mutate to the current value of id and persists the result,
// following the coherence protocol: invalidate the cache entry, compute the
// new value, optimistically cache it, then write it to the backend. If the
// backend write fails, the cache entry is invalidated again rather than
// left holding the optimistic value, forcing the next reader to refetch
// from the backend instead of trusting a write that may not have landed.
func (m *Manager) write(ctx context.Context, id string, mutate func(object.Object) (object.Object, error)) (object.Object, error) {
	current, err := m.Fetch(ctx, id)
	if err != nil {
		return object.Object{}, err
	}

	m.cache.Invalidate(id)

	updated, err := mutate(current.Clone())
	if err != nil {
		return object.Object{}, err
	}

	m.cachePut(id, cache.Entry{Object: updated})

	data, err := m.codec.Encode(updated)
	if err != nil {
		m.cache.Invalidate(id)
		return object.Object{}, fmt.Errorf("store: encode %q: %w", id, err)
	}

	if err := m.backendPut(ctx, id, data); err != nil {
		m.cache.Invalidate(id)
		return object.Object{}, ferrors.Wrap(ferrors.BackendUnavailable, "write %q: %v", id, err)
	}

	return updated, nil
}

// UpdateMeta applies mutate to id's Meta and persists the result.
func (m *Manager) UpdateMeta(ctx context.Context, id string, mutate func(*object.Meta)) (object.Object, error) {
	return m.write(ctx, id, func(o object.Object) (object.Object, error) {
		mutate(&o.Meta)
		return o, nil
	})
}

// WriteData replaces a regular file's content and size, updating Mtime and
// Ctime to now.
func (m *Manager) WriteData(ctx context.Context, id string, content []byte) (object.Object, error) {
	return m.write(ctx, id, func(o object.Object) (object.Object, error) {
		if o.Meta.Kind != object.KindRegular {
			return object.Object{}, ferrors.Wrap(ferrors.WrongKind, "id %q is a %s", id, o.Meta.Kind)
		}
		o.Data.Bytes = content
		o.Meta.Size = uint64(len(content))
		now := m.clock.Now()
		o.Meta.Mtime = now
		o.Meta.Ctime = now
		return o, nil
	})
}

func isNotFound(err error) bool {
	return errors.Is(err, ferrors.NotFound)
}
