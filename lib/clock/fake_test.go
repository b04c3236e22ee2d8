// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

func TestFakeNow(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := Fake(start)

	if got := c.Now(); !got.Equal(start) {
		t.Errorf("Now() = %v, want %v", got, start)
	}

	c.Advance(90 * time.Second)
	if got := c.Now(); !got.Equal(start.Add(90 * time.Second)) {
		t.Errorf("Now() after Advance = %v, want %v", got, start.Add(90*time.Second))
	}
}

func TestFakeTickerFires(t *testing.T) {
	c := Fake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	ticker := c.NewTicker(5 * time.Second)
	defer ticker.Stop()

	select {
	case <-ticker.C:
		t.Fatal("ticker fired before Advance")
	default:
	}

	c.Advance(5 * time.Second)
	select {
	case <-ticker.C:
	default:
		t.Fatal("ticker did not fire after Advance past deadline")
	}
}

func TestFakeTickerDropsUndrained(t *testing.T) {
	c := Fake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	ticker := c.NewTicker(time.Second)
	defer ticker.Stop()

	// Cross three deadlines without draining; capacity is 1.
	c.Advance(3 * time.Second)

	count := 0
	for {
		select {
		case <-ticker.C:
			count++
			continue
		default:
		}
		break
	}
	if count != 1 {
		t.Errorf("drained %d ticks, want 1 (undrained ticks drop)", count)
	}
}

func TestFakeTickerStop(t *testing.T) {
	c := Fake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	ticker := c.NewTicker(time.Second)
	ticker.Stop()

	c.Advance(10 * time.Second)
	select {
	case <-ticker.C:
		t.Fatal("stopped ticker fired")
	default:
	}
}
