// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"time"

	"github.com/wardenhq/warden/lib/clock"
)

const (
	// resourceSweepInterval is how often monitored sandboxes get a
	// fresh usage reading from the backend.
	resourceSweepInterval = 5 * time.Second

	// healthSweepInterval is how often usage readings are evaluated
	// against the sandbox's limits.
	healthSweepInterval = time.Second
)

// monitorLoop drives the two periodic sweeps until stop closes. It is
// the only goroutine besides callers that touches the registry.
func (m *Manager) monitorLoop(stop <-chan struct{}, resources, health *clock.Ticker) {
	defer m.monitorDone.Done()
	defer resources.Stop()
	defer health.Stop()

	for {
		select {
		case <-stop:
			return
		case <-resources.C:
			m.resourceSweep()
		case <-health.C:
			m.healthSweep()
		}
	}
}

// resourceSweep refreshes the usage counters of every monitored
// sandbox. Backend reads happen outside the lock.
func (m *Manager) resourceSweep() {
	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return
	}
	backend := m.backend
	ids := make([]string, 0, len(m.records))
	for id, rec := range m.records {
		if rec.monitored {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()

	readings := make(map[string]Usage, len(ids))
	for _, id := range ids {
		usage, err := backend.ResourceUsage(id)
		if err != nil {
			m.logger.Debug("resource reading failed", "sandbox", id, "error", err)
			continue
		}
		readings[id] = usage
	}

	m.mu.Lock()
	for id, usage := range readings {
		if rec, ok := m.records[id]; ok {
			rec.usage = usage
		}
	}
	m.mu.Unlock()
}

// healthSweep evaluates the latest readings against each monitored
// sandbox's limits. A breach is recorded as a violation and raised once
// per excursion, not once per sweep.
func (m *Manager) healthSweep() {
	type breach struct {
		id       string
		resource string
		message  string
	}
	var breaches []breach

	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return
	}
	for id, rec := range m.records {
		if !rec.monitored {
			continue
		}
		overMem := rec.cfg.MaxMemoryUsage > 0 && rec.usage.MemoryBytes > uint64(rec.cfg.MaxMemoryUsage)
		if overMem && !rec.memExceeded {
			msg := "memory limit exceeded"
			m.recordViolationLocked(rec, msg)
			breaches = append(breaches, breach{id, "memory", msg})
		}
		rec.memExceeded = overMem

		overCPU := rec.cfg.MaxCPUTime > 0 && rec.usage.CPUTime > rec.cfg.MaxCPUTime
		if overCPU && !rec.cpuExceeded {
			msg := "cpu time limit exceeded"
			m.recordViolationLocked(rec, msg)
			breaches = append(breaches, breach{id, "cpu", msg})
		}
		rec.cpuExceeded = overCPU
	}
	m.mu.Unlock()

	for _, b := range breaches {
		m.fireViolation(b.id, b.message)
		if m.events.OnResourceLimitExceeded != nil {
			m.events.OnResourceLimitExceeded(b.id, b.resource)
		}
	}
}
