// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import "time"

// UsageSnapshot preserves the final resource reading of a sandbox after
// the sandbox itself is gone. Destroyed marks the snapshot as
// post-mortem; a live reading never sets it.
type UsageSnapshot struct {
	SandboxID   string        `cbor:"1,keyasint" yaml:"sandbox_id"`
	MemoryBytes uint64        `cbor:"2,keyasint" yaml:"memory_bytes"`
	CPUTime     time.Duration `cbor:"3,keyasint" yaml:"cpu_time"`
	Timestamp   time.Time     `cbor:"4,keyasint" yaml:"timestamp"`
	Destroyed   bool          `cbor:"5,keyasint" yaml:"destroyed"`
}

// usageCache holds post-destruction usage snapshots keyed by sandbox
// id. It is not self-locking: every method is called with the Manager's
// mutex held.
type usageCache struct {
	snapshots map[string]UsageSnapshot
}

func newUsageCache() *usageCache {
	return &usageCache{snapshots: make(map[string]UsageSnapshot)}
}

// put stores a snapshot, replacing any earlier snapshot for the id.
func (c *usageCache) put(snap UsageSnapshot) {
	c.snapshots[snap.SandboxID] = snap
}

func (c *usageCache) get(id string) (UsageSnapshot, bool) {
	snap, ok := c.snapshots[id]
	return snap, ok
}

func (c *usageCache) remove(id string) {
	delete(c.snapshots, id)
}

// purge drops every snapshot. Used when snapshot retention is switched
// off globally and on manager shutdown.
func (c *usageCache) purge() {
	c.snapshots = make(map[string]UsageSnapshot)
}

func (c *usageCache) len() int { return len(c.snapshots) }

// all returns the snapshots in unspecified order.
func (c *usageCache) all() []UsageSnapshot {
	out := make([]UsageSnapshot, 0, len(c.snapshots))
	for _, snap := range c.snapshots {
		out = append(out, snap)
	}
	return out
}
