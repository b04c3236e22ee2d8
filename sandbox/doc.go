// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package sandbox creates named, policy-bounded execution contexts and
// enforces resource limits on the processes bound to them.
//
// The central type is [Manager], which owns a registry of sandbox
// records, an optional post-destruction usage cache, and a background
// monitor. Each sandbox is created from a [Config] declaring its
// filesystem allow/deny lists, executable allow-list, network domain
// allow-list, permission categories, and resource ceilings. Policy
// decisions are default-deny: a path absent from the allow-list is
// rejected, and denied-path prefixes win over any allow entry. Every
// denial is answered synchronously, appended to the sandbox's violation
// log, and raised through the [Events] callbacks.
//
// OS isolation is delegated to a [Backend], one implementation per
// platform. The Linux backend maps requested [IsolationType] values to
// clone flags and enforces limits through the cgroup hierarchy
// (unified v2 when /sys/fs/cgroup/cgroup.controllers is present, split
// v1 hierarchies otherwise). The Windows backend assigns each sandbox
// a kernel job object carrying memory, CPU-rate, and active-process
// caps, optionally hardening spawned processes with a restricted token
// and a low integrity label before their suspended main thread resumes.
// The macOS backend is a lifecycle stub reserved for a future
// sandbox-profile mechanism. A limit the platform cannot express is a
// logged no-op, never an error, so the Manager contract is uniform.
//
// Concurrency: Manager operations are synchronous and callable from any
// goroutine. One mutex guards the registry, the usage cache, and the
// process bindings; the monitor goroutine is the only other actor and
// takes the same lock for every read. Process spawn and termination
// waits happen outside the lock.
//
// Path and identifier validation is consumed from a [PolicyValidator]
// (by default lib/policycheck); the package never re-implements those
// predicates.
package sandbox
