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

import (
	"errors"
	"sync"
	"testing"
)

func TestBroker_ResolveOnce(t *testing.T) {
	b := NewBroker[string, int]()

	ch, release, err := b.Register("a")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	defer release()

	if !b.Resolve("a", 1) {
		t.Fatal("first Resolve should find the waiter")
	}
	if b.Resolve("a", 2) {
		t.Error("second Resolve should find nothing")
	}
	if got := <-ch; got != 1 {
		t.Errorf("got %d, want 1", got)
	}
	if b.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", b.Pending())
	}
}

func TestBroker_ReleaseDoesNotTouchReusedToken(t *testing.T) {
	b := NewBroker[string, int]()

	_, release1, _ := b.Register("a")
	b.Resolve("a", 1)

	ch2, release2, err := b.Register("a")
	if err != nil {
		t.Fatalf("re-Register: %v", err)
	}
	defer release2()

	// Releasing the stale registration must not drop the new one.
	release1()
	if !b.Resolve("a", 2) {
		t.Fatal("new waiter was removed by stale release")
	}
	if got := <-ch2; got != 2 {
		t.Errorf("got %d, want 2", got)
	}
}

func TestBroker_ConcurrentTokens(t *testing.T) {
	b := NewBroker[int, int]()
	const n = 50

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch, release, err := b.Register(i)
			if err != nil {
				t.Errorf("Register(%d): %v", i, err)
				return
			}
			defer release()
			go b.Resolve(i, i*10)
			if got := <-ch; got != i*10 {
				t.Errorf("token %d got %d", i, got)
			}
		}()
	}
	wg.Wait()

	if b.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", b.Pending())
	}
}

func TestBroker_Close(t *testing.T) {
	b := NewBroker[string, string]()
	ch, release, _ := b.Register("a")
	defer release()

	b.Close(func(token string) string { return "closed:" + token })

	if got, ok := <-ch; !ok || got != "closed:a" {
		t.Errorf("got %q (ok=%v)", got, ok)
	}
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after Close")
	}
}

func TestBroker_RegisterAfterClose(t *testing.T) {
	b := NewBroker[string, string]()
	b.Close(func(string) string { return "" })

	if _, _, err := b.Register("late"); !errors.Is(err, ErrServerNotRunning) {
		t.Fatalf("Register after Close: got %v, want ErrServerNotRunning", err)
	}
	if n := b.Pending(); n != 0 {
		t.Errorf("Pending = %d, want 0", n)
	}
}
