// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlight_GetCachesFirstValue(t *testing.T) {
	f := NewFlight[string]("test")
	ctx := context.Background()

	v := f.Get(ctx, "k", func(context.Context) string { return "first" })
	assert.Equal(t, "first", v)

	v = f.Get(ctx, "k", func(context.Context) string { return "second" })
	assert.Equal(t, "first", v, "entries are write-once")

	stats := f.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Loads)
}

func TestFlight_SingleFlight(t *testing.T) {
	f := NewFlight[string]("test")
	const n = 32

	var calls int32
	release := make(chan struct{})
	load := func(context.Context) string {
		atomic.AddInt32(&calls, 1)
		<-release
		return "line"
	}

	var wg sync.WaitGroup
	results := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = f.Get(context.Background(), LineKey(3, 7), load)
		}()
	}

	// Let every goroutine either join the flight or reach the cache.
	for atomic.LoadInt32(&calls) == 0 {
		runtime.Gosched()
	}
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for i, r := range results {
		assert.Equal(t, "line", r, "caller %d", i)
	}
}

func TestFlight_ClearIsolatesGenerations(t *testing.T) {
	f := NewFlight[int]("test")
	ctx := context.Background()

	var calls int
	load := func(context.Context) int {
		calls++
		return calls
	}

	assert.Equal(t, 1, f.Get(ctx, "k", load))
	f.Clear()
	assert.Equal(t, 0, f.Len())
	assert.Equal(t, 2, f.Get(ctx, "k", load), "cleared cache loads again")
	assert.Equal(t, int64(1), f.Stats().Clears)
}

func TestFlight_ClearDuringLoadDoesNotRepopulate(t *testing.T) {
	f := NewFlight[string]("test")

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan string)
	go func() {
		done <- f.Get(context.Background(), "k", func(context.Context) string {
			close(started)
			<-release
			return "stale"
		})
	}()

	<-started
	f.Clear()
	close(release)

	require.Equal(t, "stale", <-done, "waiters still receive the loaded value")
	assert.Equal(t, 0, f.Len(), "load from before Clear must not be stored")

	v := f.Get(context.Background(), "k", func(context.Context) string { return "fresh" })
	assert.Equal(t, "fresh", v)
}

func TestLineKey(t *testing.T) {
	assert.Equal(t, "12:0", LineKey(12, 0))
	assert.NotEqual(t, LineKey(1, 23), LineKey(12, 3))
}
