// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache provides the run-scoped single-flight caches used while
// resolving source lines.
package cache

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// LoadFunc produces the value for a key on a cache miss.
type LoadFunc[V any] func(ctx context.Context) V

// Stats holds counters for one Flight.
type Stats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Loads   int64 `json:"loads"`
	Clears  int64 `json:"clears"`
}

// Flight is a write-once, single-flight cache.
//
// Description:
//
//	The first Get for a key runs the load function. Concurrent Gets for
//	the same key wait for that load and receive the same value. Once
//	stored, an entry is never overwritten. Loads cannot fail: a loader
//	that hits an error returns the value to cache for it.
//
//	Clear discards every entry. A load that was in flight when Clear was
//	called still returns its value to its waiters but does not store it.
//
// Thread Safety:
//
//	Safe for concurrent use.
type Flight[V any] struct {
	name string

	mu         sync.RWMutex
	entries    map[string]V
	generation uint64
	group      singleflight.Group

	hits   int64
	misses int64
	loads  int64
	clears int64
}

// NewFlight creates an empty cache. name labels its metrics.
func NewFlight[V any](name string) *Flight[V] {
	return &Flight[V]{
		name:    name,
		entries: make(map[string]V),
	}
}

// Get returns the cached value for key, loading it on a miss.
//
// Inputs:
//
//	ctx - Passed to load. A cancelled ctx does not abort waiters of a
//	      load started by another caller.
//	key - Cache key.
//	load - Called at most once per key and generation.
//
// Outputs:
//
//	V - The cached or freshly loaded value.
func (f *Flight[V]) Get(ctx context.Context, key string, load LoadFunc[V]) V {
	f.mu.RLock()
	v, ok := f.entries[key]
	gen := f.generation
	f.mu.RUnlock()
	if ok {
		atomic.AddInt64(&f.hits, 1)
		recordCacheHit(ctx, f.name)
		return v
	}

	atomic.AddInt64(&f.misses, 1)
	recordCacheMiss(ctx, f.name)

	// The generation is part of the flight key so a load started before
	// Clear is never shared with callers that arrive after it.
	fk := flightKey(gen, key)
	result, _, _ := f.group.Do(fk, func() (interface{}, error) {
		f.mu.RLock()
		if v, ok := f.entries[key]; ok && f.generation == gen {
			f.mu.RUnlock()
			return v, nil
		}
		f.mu.RUnlock()

		atomic.AddInt64(&f.loads, 1)
		v := load(ctx)

		f.mu.Lock()
		if f.generation == gen {
			if _, exists := f.entries[key]; !exists {
				f.entries[key] = v
			}
		}
		f.mu.Unlock()
		return v, nil
	})
	return result.(V)
}

// Clear discards every entry.
func (f *Flight[V]) Clear() {
	f.mu.Lock()
	f.entries = make(map[string]V)
	f.generation++
	f.mu.Unlock()
	atomic.AddInt64(&f.clears, 1)
}

// Len returns the number of stored entries.
func (f *Flight[V]) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.entries)
}

// Stats returns current cache statistics.
func (f *Flight[V]) Stats() Stats {
	return Stats{
		Entries: f.Len(),
		Hits:    atomic.LoadInt64(&f.hits),
		Misses:  atomic.LoadInt64(&f.misses),
		Loads:   atomic.LoadInt64(&f.loads),
		Clears:  atomic.LoadInt64(&f.clears),
	}
}
