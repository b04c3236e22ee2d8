// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// cgroupSubtreeName is the directory created under the cgroup root for
// all warden sandboxes.
const cgroupSubtreeName = "warden"

// linuxBackend isolates sandboxes with namespaces and enforces resource
// limits through the cgroup hierarchy.
type linuxBackend struct {
	logger *slog.Logger

	mu           sync.Mutex
	initialized  bool
	cgroupV2     bool
	cgroupBase   string
	seccomp      bool
	namespaces   bool
	nextHandle   uint64
	contexts     map[string]*linuxContext
	pidToContext map[int]string
}

type linuxContext struct {
	id              string
	handle          ContextHandle
	cloneFlags      uintptr
	userNamespace   bool
	cgroupPath      string
	allowedPaths    []string
	allowedSyscalls []string
	networkAccess   bool
	pids            []int
}

// newPlatformBackend returns the Linux backend.
func newPlatformBackend(logger *slog.Logger) (Backend, error) {
	return &linuxBackend{
		logger:       logger,
		contexts:     make(map[string]*linuxContext),
		pidToContext: make(map[int]string),
	}, nil
}

func (b *linuxBackend) Name() string { return "linux" }

func (b *linuxBackend) Initialize() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.initialized {
		return nil
	}

	// Unified hierarchy is detected by the controllers capability file.
	if _, err := os.Stat("/sys/fs/cgroup/cgroup.controllers"); err == nil {
		b.cgroupV2 = true
		b.cgroupBase = b.unifiedBase()
	} else {
		b.cgroupBase = filepath.Join("/sys/fs/cgroup/memory", cgroupSubtreeName)
	}

	if err := os.MkdirAll(b.cgroupBase, 0o755); err != nil {
		// Unprivileged hosts often cannot create cgroups. Limits become
		// logged no-ops rather than a failed backend.
		b.logger.Warn("cannot create cgroup base, resource limits will not be enforced",
			"path", b.cgroupBase, "error", err)
		b.cgroupBase = ""
	}

	if err := unix.Prctl(unix.PR_GET_SECCOMP, 0, 0, 0, 0); err == nil {
		b.seccomp = true
	}

	b.namespaces = true
	for _, ns := range []string{"pid", "mnt", "net"} {
		if _, err := os.Stat("/proc/self/ns/" + ns); err != nil {
			b.namespaces = false
			break
		}
	}

	b.initialized = true
	b.logger.Info("linux backend initialized",
		"cgroup_v2", b.cgroupV2,
		"cgroup_base", b.cgroupBase,
		"seccomp", b.seccomp,
		"namespaces", b.namespaces)
	return nil
}

// unifiedBase places the warden subtree under the caller's own cgroup
// when possible (required for unprivileged delegation), falling back to
// the hierarchy root.
func (b *linuxBackend) unifiedBase() string {
	data, err := os.ReadFile("/proc/self/cgroup")
	if err == nil {
		if own, perr := parseCgroupV2Path(string(data)); perr == nil {
			return filepath.Join("/sys/fs/cgroup", own, cgroupSubtreeName)
		}
	}
	return filepath.Join("/sys/fs/cgroup", cgroupSubtreeName)
}

func (b *linuxBackend) Shutdown() error {
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

func (b *linuxBackend) CreateIsolationContext(id string, types []IsolationType) (ContextHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		return 0, fmt.Errorf("%w: backend not initialized", ErrInitialization)
	}
	if existing, ok := b.contexts[id]; ok {
		b.logger.Warn("isolation context already exists", "sandbox", id)
		return existing.handle, nil
	}

	var flags uintptr
	var userNS bool
	for _, t := range types {
		switch t {
		case IsolationPID:
			flags |= unix.CLONE_NEWPID
		case IsolationNet:
			flags |= unix.CLONE_NEWNET
		case IsolationMount:
			flags |= unix.CLONE_NEWNS
		case IsolationUTS:
			flags |= unix.CLONE_NEWUTS
		case IsolationIPC:
			flags |= unix.CLONE_NEWIPC
		case IsolationUser:
			flags |= unix.CLONE_NEWUSER
			userNS = true
		default:
			b.logger.Warn("unknown isolation type ignored", "sandbox", id, "type", t)
		}
	}
	if flags != 0 && !b.namespaces {
		b.logger.Warn("namespaces unavailable, processes will run unisolated", "sandbox", id)
		flags = 0
		userNS = false
	}

	b.nextHandle++
	ctx := &linuxContext{
		id:            id,
		handle:        ContextHandle(b.nextHandle),
		cloneFlags:    flags,
		userNamespace: userNS,
	}

	if b.cgroupBase != "" {
		path := filepath.Join(b.cgroupBase, id)
		if err := os.MkdirAll(path, 0o755); err != nil {
			b.logger.Warn("cannot create cgroup, limits will not be enforced",
				"sandbox", id, "path", path, "error", err)
		} else {
			ctx.cgroupPath = path
			if b.cgroupV2 {
				b.enableControllers()
			}
		}
	}

	b.contexts[id] = ctx
	b.logger.Info("isolation context created",
		"sandbox", id, "clone_flags", flags, "cgroup", ctx.cgroupPath)
	return ctx.handle, nil
}

// enableControllers turns on the cpu, memory, and pids controllers for
// the warden subtree. EBUSY from the "no internal processes" rule or
// EACCES from missing delegation both degrade to accounting-only
// cgroups.
func (b *linuxBackend) enableControllers() {
	control := filepath.Join(filepath.Dir(b.cgroupBase), "cgroup.subtree_control")
	if err := os.WriteFile(control, []byte("+cpu +memory +pids"), 0o644); err != nil {
		b.logger.Warn("cannot enable cgroup controllers, limits may not apply",
			"path", control, "error", err)
	}
	control = filepath.Join(b.cgroupBase, "cgroup.subtree_control")
	if err := os.WriteFile(control, []byte("+cpu +memory +pids"), 0o644); err != nil {
		b.logger.Warn("cannot enable cgroup controllers, limits may not apply",
			"path", control, "error", err)
	}
}

func (b *linuxBackend) DestroyIsolationContext(id string) error {
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

	if ctx.cgroupPath != "" {
		if err := os.Remove(ctx.cgroupPath); err != nil && !os.IsNotExist(err) {
			// Processes may still be draining out of the cgroup.
			b.logger.Warn("cannot remove cgroup", "path", ctx.cgroupPath, "error", err)
		}
	}

	b.logger.Info("isolation context destroyed", "sandbox", id)
	return nil
}

func (b *linuxBackend) AddProcessToContext(id string, pid int) error {
	b.mu.Lock()
	ctx, ok := b.contexts[id]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("%w: no isolation context %q", ErrSandboxNotFound, id)
	}
	ctx.pids = append(ctx.pids, pid)
	b.pidToContext[pid] = id
	cgroupPath := ctx.cgroupPath
	b.mu.Unlock()

	if cgroupPath == "" {
		return nil
	}
	procs := filepath.Join(cgroupPath, "cgroup.procs")
	if err := os.WriteFile(procs, []byte(strconv.Itoa(pid)), 0o644); err != nil {
		return fmt.Errorf("failed to add pid %d to cgroup: %w", pid, err)
	}
	return nil
}

// writeLimit writes a limit file for the context's cgroup. A context
// without a cgroup, or a write the kernel refuses, degrades to a warned
// no-op so the cross-platform contract holds.
func (b *linuxBackend) writeLimit(id, file, value, what string) error {
	b.mu.Lock()
	ctx, ok := b.contexts[id]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: no isolation context %q", ErrSandboxNotFound, id)
	}
	if ctx.cgroupPath == "" {
		b.logger.Warn("no cgroup for sandbox, limit not enforced", "sandbox", id, "limit", what)
		return nil
	}
	path := filepath.Join(ctx.cgroupPath, file)
	if err := os.WriteFile(path, []byte(value), 0o644); err != nil {
		b.logger.Warn("cannot write cgroup limit, not enforced",
			"sandbox", id, "limit", what, "path", path, "error", err)
		return nil
	}
	b.logger.Debug("cgroup limit set", "sandbox", id, "limit", what, "value", value)
	return nil
}

func (b *linuxBackend) SetMemoryLimit(id string, limitBytes uint64) error {
	return b.writeLimit(id, cgroupMemoryLimitFile(b.cgroupV2),
		strconv.FormatUint(limitBytes, 10), "memory")
}

func (b *linuxBackend) SetCPULimit(id string, percent uint32) error {
	return b.writeLimit(id, cgroupCPULimitFile(b.cgroupV2),
		cgroupCPULimitValue(percent, b.cgroupV2), "cpu")
}

func (b *linuxBackend) SetProcessLimit(id string, maxProcesses uint32) error {
	return b.writeLimit(id, cgroupProcessLimitFile(),
		strconv.FormatUint(uint64(maxProcesses), 10), "pids")
}

func (b *linuxBackend) SetFileSystemAccess(id string, allowedPaths []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	ctx, ok := b.contexts[id]
	if !ok {
		return fmt.Errorf("%w: no isolation context %q", ErrSandboxNotFound, id)
	}
	ctx.allowedPaths = append([]string(nil), allowedPaths...)
	// Without a constructed mount namespace root, path policy is
	// enforced by the Manager's checks, not the kernel.
	b.logger.Debug("filesystem access recorded", "sandbox", id, "paths", len(allowedPaths))
	return nil
}

func (b *linuxBackend) SetNetworkAccess(id string, enabled bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	ctx, ok := b.contexts[id]
	if !ok {
		return fmt.Errorf("%w: no isolation context %q", ErrSandboxNotFound, id)
	}
	ctx.networkAccess = enabled
	b.logger.Debug("network access set", "sandbox", id, "enabled", enabled)
	return nil
}

func (b *linuxBackend) CreateSandboxedProcess(ctx context.Context, executable string, args []string, id string, hardening Hardening) (int, error) {
	b.mu.Lock()
	ictx, ok := b.contexts[id]
	if !ok {
		b.mu.Unlock()
		return 0, fmt.Errorf("%w: no isolation context %q", ErrSandboxNotFound, id)
	}
	cloneFlags := ictx.cloneFlags
	userNS := ictx.userNamespace
	cgroupPath := ictx.cgroupPath
	if hardening.RestrictSyscalls {
		if b.seccomp {
			ictx.allowedSyscalls = append([]string(nil), hardening.AllowedSyscalls...)
		} else {
			b.logger.Warn("seccomp unavailable, syscall filter not applied", "sandbox", id)
		}
	}
	b.mu.Unlock()

	cmd := exec.CommandContext(ctx, executable, args...)
	// Minimal environment: the parent's env must not leak into the
	// sandboxed process.
	cmd.Env = []string{
		"PATH=/usr/local/bin:/usr/bin:/bin",
		"WARDEN_SANDBOX_ID=" + id,
	}

	attr := &syscall.SysProcAttr{
		Setpgid:    true,
		Cloneflags: cloneFlags,
	}
	if userNS {
		attr.UidMappings = []syscall.SysProcIDMap{
			{ContainerID: 0, HostID: os.Getuid(), Size: 1},
		}
		attr.GidMappings = []syscall.SysProcIDMap{
			{ContainerID: 0, HostID: os.Getgid(), Size: 1},
		}
	}

	// Clone directly into the cgroup so the process is accounted and
	// limited before it executes any caller code.
	var cgroupFD *os.File
	if cgroupPath != "" && b.cgroupV2 {
		fd, err := os.OpenFile(cgroupPath, os.O_RDONLY|unix.O_PATH, 0)
		if err != nil {
			b.logger.Warn("cannot open cgroup for clone, falling back to post-start assignment",
				"sandbox", id, "error", err)
		} else {
			cgroupFD = fd
			attr.UseCgroupFD = true
			attr.CgroupFD = int(fd.Fd())
		}
	}
	cmd.SysProcAttr = attr

	err := cmd.Start()
	if cgroupFD != nil {
		cgroupFD.Close()
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrProcessCreation, executable, err)
	}

	pid := cmd.Process.Pid

	b.mu.Lock()
	if ictx, ok := b.contexts[id]; ok {
		ictx.pids = append(ictx.pids, pid)
		b.pidToContext[pid] = id
	}
	b.mu.Unlock()

	// v1 hierarchies cannot clone into a cgroup; assign after start.
	if cgroupPath != "" && !attr.UseCgroupFD {
		procs := filepath.Join(cgroupPath, "cgroup.procs")
		if werr := os.WriteFile(procs, []byte(strconv.Itoa(pid)), 0o644); werr != nil {
			b.logger.Warn("cannot assign process to cgroup", "sandbox", id, "pid", pid, "error", werr)
		}
	}

	// Reap the process and drop its binding when it exits.
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

func (b *linuxBackend) TerminateProcess(pid int) error {
	// Signal the whole process group; sandboxed processes run with
	// Setpgid so pid == pgid.
	if err := unix.Kill(-pid, unix.SIGTERM); err != nil {
		if err == unix.ESRCH {
			return nil
		}
		// Fall back to the single process when the group is gone.
		if kerr := unix.Kill(pid, unix.SIGTERM); kerr == unix.ESRCH {
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

func (b *linuxBackend) ResourceUsage(id string) (Usage, error) {
	b.mu.Lock()
	ctx, ok := b.contexts[id]
	b.mu.Unlock()
	if !ok {
		return Usage{}, fmt.Errorf("%w: no isolation context %q", ErrSandboxNotFound, id)
	}
	if ctx.cgroupPath == "" {
		return Usage{}, nil
	}

	var usage Usage
	if data, err := os.ReadFile(filepath.Join(ctx.cgroupPath, cgroupMemoryUsageFile(b.cgroupV2))); err == nil {
		if bytes, perr := parseCgroupBytes(string(data)); perr == nil {
			usage.MemoryBytes = bytes
		}
	}
	if data, err := os.ReadFile(filepath.Join(ctx.cgroupPath, cgroupCPUUsageFile(b.cgroupV2))); err == nil {
		var cpu time.Duration
		var perr error
		if b.cgroupV2 {
			cpu, perr = parseCgroupCPUStat(string(data))
		} else {
			cpu, perr = parseCgroupNanos(string(data))
		}
		if perr == nil {
			usage.CPUTime = cpu
		}
	}
	return usage, nil
}

func (b *linuxBackend) Capabilities() Capabilities {
	b.mu.Lock()
	defer b.mu.Unlock()
	version := 1
	if b.cgroupV2 {
		version = 2
	}
	if b.cgroupBase == "" {
		version = 0
	}
	return Capabilities{
		Platform:         "linux",
		Namespaces:       b.namespaces,
		CgroupVersion:    version,
		SyscallFiltering: b.seccomp,
	}
}
