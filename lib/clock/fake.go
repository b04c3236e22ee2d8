// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sync"
	"time"
)

// Fake returns a FakeClock frozen at initial. Time moves only when
// Advance is called; tickers fire synchronously during Advance in
// deadline order.
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{current: initial}
}

// FakeClock is a deterministic Clock for tests. Safe for concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	tickers []*fakeTicker
}

type fakeTicker struct {
	next     time.Time
	interval time.Duration
	ch       chan time.Time
	stopped  bool
}

// Now returns the fake clock's current time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// NewTicker registers a ticker that fires whenever Advance crosses its
// next deadline. The channel has capacity 1; undrained ticks are
// dropped, matching time.Ticker.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive ticker interval")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ft := &fakeTicker{
		next:     c.current.Add(d),
		interval: d,
		ch:       make(chan time.Time, 1),
	}
	c.tickers = append(c.tickers, ft)
	return &Ticker{
		C: ft.ch,
		stop: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			ft.stopped = true
		},
	}
}

// Sleep returns immediately; fake time does not pass on its own.
func (c *FakeClock) Sleep(time.Duration) {}

// Advance moves the clock forward by d, firing every ticker whose
// deadline falls inside the window, repeatedly for multi-interval
// advances.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	target := c.current.Add(d)
	for {
		earliest := time.Time{}
		var fire *fakeTicker
		for _, ft := range c.tickers {
			if ft.stopped {
				continue
			}
			if !ft.next.After(target) && (fire == nil || ft.next.Before(earliest)) {
				earliest = ft.next
				fire = ft
			}
		}
		if fire == nil {
			break
		}
		c.current = fire.next
		fire.next = fire.next.Add(fire.interval)
		select {
		case fire.ch <- c.current:
		default:
		}
	}
	c.current = target
}
