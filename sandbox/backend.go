// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"context"
	"time"
)

// IsolationType names one OS isolation primitive requested for a
// sandbox. The Linux backend maps these to clone flags; other backends
// treat unsupported types as logged no-ops.
type IsolationType string

const (
	IsolationPID   IsolationType = "pid"
	IsolationNet   IsolationType = "net"
	IsolationMount IsolationType = "mnt"
	IsolationUTS   IsolationType = "uts"
	IsolationIPC   IsolationType = "ipc"
	IsolationUser  IsolationType = "user"
)

// terminateGrace is how long a backend waits for a process to exit
// after the graceful termination signal before forcing the kill.
const terminateGrace = 2 * time.Second

// removePID removes one occurrence of pid from a context's pid list.
func removePID(pids []int, pid int) []int {
	out := pids[:0]
	for _, p := range pids {
		if p != pid {
			out = append(out, p)
		}
	}
	return out
}

// ContextHandle is an opaque reference to a backend isolation context.
// It is owned exclusively by the sandbox's registry entry and released
// exactly once when the context is destroyed. Zero means no context.
type ContextHandle uint64

// Hardening selects the optional process-level restrictions applied
// before a sandboxed executable runs. On Linux, RestrictSyscalls
// installs a reject-by-default syscall allow-list and
// RestrictPrivileges reduces the capability set; on Windows they map to
// a low integrity label and a restricted access token respectively.
type Hardening struct {
	RestrictSyscalls bool

	// AllowedSyscalls is the allow-list used when RestrictSyscalls is
	// set. Empty means the backend's minimal default set.
	AllowedSyscalls []string

	RestrictPrivileges bool
}

// Usage is a live resource reading for one isolation context.
type Usage struct {
	MemoryBytes uint64
	CPUTime     time.Duration
}

// Capabilities reports which isolation features the running host
// supports. Fields that do not apply to a platform are zero.
type Capabilities struct {
	Platform string

	// Namespaces is true when Linux namespace isolation is available.
	Namespaces bool

	// CgroupVersion is 2 for the unified hierarchy, 1 for split
	// hierarchies, 0 when no cgroup support was detected.
	CgroupVersion int

	// SyscallFiltering is true when a seccomp-style filter can be
	// installed.
	SyscallFiltering bool

	// JobObjects is true when Windows job objects are available.
	JobObjects bool

	// RestrictedTokens is true when restricted access tokens can be
	// created (Windows).
	RestrictedTokens bool

	// IntegrityLevels is true when mandatory integrity labels can be
	// applied (Windows).
	IntegrityLevels bool
}

// Backend is the per-OS isolation capability interface. One backend
// instance serves all sandboxes of a Manager.
//
/// Contract: a resource limit the platform cannot express is accepted as
// a logged no-op, never an error. CreateSandboxedProcess must place the
// new process inside the isolation context before it executes caller
// code. TerminateProcess is graceful-then-forced and is a benign no-op
// for a pid that is already gone.
type Backend interface {
	// Name identifies the backend for logs ("linux", "windows",
	// "darwin").
	Name() string

	Initialize() error
	Shutdown() error

	// CreateIsolationContext builds the OS container for a sandbox and
	// returns its opaque handle. Creating a context for an id that
	// already has one returns the existing handle.
	CreateIsolationContext(id string, types []IsolationType) (ContextHandle, error)

	// DestroyIsolationContext forcibly terminates any bound processes,
	// releases OS resources, and invalidates the handle.
	DestroyIsolationContext(id string) error

	// AddProcessToContext binds an already-running process to the
	// context's resource accounting.
	AddProcessToContext(id string, pid int) error

	SetMemoryLimit(id string, limitBytes uint64) error
	SetCPULimit(id string, percent uint32) error
	SetProcessLimit(id string, maxProcesses uint32) error

	// SetFileSystemAccess records the path allow-list on the context.
	// Kernel-level path enforcement only exists where the platform
	// provides it (a Linux mount namespace); the Manager enforces the
	// policy on its own checks regardless.
	SetFileSystemAccess(id string, allowedPaths []string) error

	SetNetworkAccess(id string, enabled bool) error

	// CreateSandboxedProcess spawns executable inside the context and
	// returns its pid once the process is confirmed started.
	CreateSandboxedProcess(ctx context.Context, executable string, args []string, id string, hardening Hardening) (int, error)

	// TerminateProcess sends the graceful termination signal, waits a
	// bounded interval, then kills.
	TerminateProcess(pid int) error

	// ResourceUsage reads OS accounting for the context.
	ResourceUsage(id string) (Usage, error)

	// Capabilities probes host support.
	Capabilities() Capabilities
}
