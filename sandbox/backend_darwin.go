// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

//go:build darwin

package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// darwinBackend is a bookkeeping-only backend. macOS offers no
// unprivileged equivalent of namespaces or job objects, so isolation
// contexts track membership and policy while limits degrade to logged
// no-ops. The Manager's policy checks still apply in full.
type darwinBackend struct {
	logger *slog.Logger

	mu           sync.Mutex
	initialized  bool
	nextHandle   uint64
	contexts     map[string]*darwinContext
	pidToContext map[int]string
}

type darwinContext struct {
	id            string
	handle        ContextHandle
	allowedPaths  []string
	networkAccess bool
	pids          []int
}

// newPlatformBackend returns the macOS backend.
func newPlatformBackend(logger *slog.Logger) (Backend, error) {
	return &darwinBackend{
		logger:       logger,
		contexts:     make(map[string]*darwinContext),
		pidToContext: make(map[int]string),
	}, nil
}

func (b *darwinBackend) Name() string { return "darwin" }

func (b *darwinBackend) Initialize() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.initialized {
		return nil
	}
	b.initialized = true
	b.logger.Warn("darwin backend provides policy tracking only, no kernel isolation")
	return nil
}

func (b *darwinBackend) Shutdown() error {
	b.mu.Lock()
	ids := make([]string, 0, len(b.contexts))
	for id := range b.contexts {
		ids = append(ids, id)
	}
	b.mu.Unlock()

	for _, id := range ids {
		if err := b.DestroyIsolationContext(id); err != nil {
			b.logger.Warn("failed to destroy isolation context during shutdown",
				"sandbox", id, "error", err)
		}
	}

	b.mu.Lock()
	b.initialized = false
	b.mu.Unlock()
	return nil
}

func (b *darwinBackend) CreateIsolationContext(id string, types []IsolationType) (ContextHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		return 0, fmt.Errorf("%w: backend not initialized", ErrInitialization)
	}
	if existing, ok := b.contexts[id]; ok {
		b.logger.Warn("isolation context already exists", "sandbox", id)
		return existing.handle, nil
	}
	b.nextHandle++
	ctx := &darwinContext{id: id, handle: ContextHandle(b.nextHandle)}
	b.contexts[id] = ctx
	b.logger.Info("isolation context created", "sandbox", id)
	return ctx.handle, nil
}

func (b *darwinBackend) DestroyIsolationContext(id string) error {
	b.mu.Lock()
	ctx, ok := b.contexts[id]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("%w: no isolation context %q", ErrSandboxNotFound, id)
	}
	pids := append([]int(nil), ctx.pids...)
	for _, pid := range pids {
		delete(b.pidToContext, pid)
	}
	delete(b.contexts, id)
	b.mu.Unlock()

	for _, pid := range pids {
		if err := b.TerminateProcess(pid); err != nil {
			b.logger.Warn("failed to terminate process during context destroy",
				"sandbox", id, "pid", pid, "error", err)
		}
	}
	b.logger.Info("isolation context destroyed", "sandbox", id)
	return nil
}

func (b *darwinBackend) AddProcessToContext(id string, pid int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	ctx, ok := b.contexts[id]
	if !ok {
		return fmt.Errorf("%w: no isolation context %q", ErrSandboxNotFound, id)
	}
	ctx.pids = append(ctx.pids, pid)
	b.pidToContext[pid] = id
	return nil
}

func (b *darwinBackend) SetMemoryLimit(id string, limitBytes uint64) error {
	return b.noopLimit(id, "memory")
}

func (b *darwinBackend) SetCPULimit(id string, percent uint32) error {
	return b.noopLimit(id, "cpu")
}

func (b *darwinBackend) SetProcessLimit(id string, maxProcesses uint32) error {
	return b.noopLimit(id, "pids")
}

func (b *darwinBackend) noopLimit(id, what string) error {
	b.mu.Lock()
	_, ok := b.contexts[id]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: no isolation context %q", ErrSandboxNotFound, id)
	}
	b.logger.Warn("resource limits unsupported on darwin, not enforced",
		"sandbox", id, "limit", what)
	return nil
}

func (b *darwinBackend) SetFileSystemAccess(id string, allowedPaths []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	ctx, ok := b.contexts[id]
	if !ok {
		return fmt.Errorf("%w: no isolation context %q", ErrSandboxNotFound, id)
	}
	ctx.allowedPaths = append([]string(nil), allowedPaths...)
	return nil
}

func (b *darwinBackend) SetNetworkAccess(id string, enabled bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	ctx, ok := b.contexts[id]
	if !ok {
		return fmt.Errorf("%w: no isolation context %q", ErrSandboxNotFound, id)
	}
	ctx.networkAccess = enabled
	return nil
}

func (b *darwinBackend) CreateSandboxedProcess(ctx context.Context, executable string, args []string, id string, hardening Hardening) (int, error) {
	b.mu.Lock()
	_, ok := b.contexts[id]
	b.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("%w: no isolation context %q", ErrSandboxNotFound, id)
	}
	if hardening.RestrictSyscalls {
		b.logger.Warn("syscall filtering unsupported on darwin, not applied", "sandbox", id)
	}

	cmd := exec.CommandContext(ctx, executable, args...)
	cmd.Env = []string{
		"PATH=/usr/local/bin:/usr/bin:/bin",
		"WARDEN_SANDBOX_ID=" + id,
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrProcessCreation, executable, err)
	}

	pid := cmd.Process.Pid
	b.mu.Lock()
	if ictx, ok := b.contexts[id]; ok {
		ictx.pids = append(ictx.pids, pid)
		b.pidToContext[pid] = id
	}
	b.mu.Unlock()

	go func() {
		waitErr := cmd.Wait()
		b.mu.Lock()
		if ictx, ok := b.contexts[id]; ok {
			ictx.pids = removePID(ictx.pids, pid)
		}
		delete(b.pidToContext, pid)
		b.mu.Unlock()
		b.logger.Info("sandboxed process exited", "sandbox", id, "pid", pid, "error", waitErr)
	}()

	b.logger.Info("sandboxed process created", "sandbox", id, "pid", pid, "executable", executable)
	return pid, nil
}

func (b *darwinBackend) TerminateProcess(pid int) error {
	if err := unix.Kill(-pid, unix.SIGTERM); err == unix.ESRCH {
		if unix.Kill(pid, unix.SIGTERM) == unix.ESRCH {
			return nil
		}
	}
	deadline := time.Now().Add(terminateGrace)
	for time.Now().Before(deadline) {
		if unix.Kill(pid, 0) == unix.ESRCH {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	if err := unix.Kill(-pid, unix.SIGKILL); err == unix.ESRCH {
		return nil
	}
	unix.Kill(pid, unix.SIGKILL)
	return nil
}

func (b *darwinBackend) ResourceUsage(id string) (Usage, error) {
	b.mu.Lock()
	_, ok := b.contexts[id]
	b.mu.Unlock()
	if !ok {
		return Usage{}, fmt.Errorf("%w: no isolation context %q", ErrSandboxNotFound, id)
	}
	// No per-context accounting without a kernel container.
	return Usage{}, nil
}

func (b *darwinBackend) Capabilities() Capabilities {
	return Capabilities{Platform: "darwin"}
}
