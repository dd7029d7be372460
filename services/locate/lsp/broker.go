// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lsp

import "sync"

// Broker correlates asynchronous replies with the requests waiting for them.
//
// Description:
//
//	A waiter is registered under a unique token before the request is sent.
//	The first reply delivered for that token resolves the waiter and removes
//	it; later replies for the same token are dropped. The caller releases the
//	registration when it stops waiting (reply, timeout or cancellation), so
//	no waiter outlives its request. Once closed, a broker accepts no new
//	waiters.
//
// Thread Safety:
//
//	Safe for concurrent use.
type Broker[K comparable, V any] struct {
	mu      sync.Mutex
	waiters map[K]chan V
	closed  bool
}

// NewBroker creates an empty broker.
func NewBroker[K comparable, V any]() *Broker[K, V] {
	return &Broker[K, V]{waiters: make(map[K]chan V)}
}

// Register adds a one-shot waiter for token.
//
// Outputs:
//
//	<-chan V - Receives exactly one value, or is closed by Close
//	func() - Releases the registration; safe to call more than once
//	error - ErrServerNotRunning after Close, ErrDuplicateToken if token
//	        is already waiting
func (b *Broker[K, V]) Register(token K) (<-chan V, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, nil, ErrServerNotRunning
	}
	if _, exists := b.waiters[token]; exists {
		return nil, nil, ErrDuplicateToken
	}
	ch := make(chan V, 1)
	b.waiters[token] = ch

	release := func() {
		b.mu.Lock()
		if cur, ok := b.waiters[token]; ok && cur == ch {
			delete(b.waiters, token)
		}
		b.mu.Unlock()
	}
	return ch, release, nil
}

// Resolve delivers v to the waiter for token and deregisters it.
// Returns false when nobody is waiting.
func (b *Broker[K, V]) Resolve(token K, v V) bool {
	b.mu.Lock()
	ch, ok := b.waiters[token]
	if ok {
		delete(b.waiters, token)
	}
	b.mu.Unlock()

	if !ok {
		return false
	}
	ch <- v // buffered, never blocks: each channel receives at most once
	return true
}

// Pending returns the number of registered waiters.
func (b *Broker[K, V]) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.waiters)
}

// Close resolves every waiter with fail(token) and empties the broker.
// Later Register calls fail.
func (b *Broker[K, V]) Close(fail func(K) V) {
	b.mu.Lock()
	b.closed = true
	waiters := b.waiters
	b.waiters = make(map[K]chan V)
	b.mu.Unlock()

	for token, ch := range waiters {
		ch <- fail(token)
		close(ch)
	}
}
