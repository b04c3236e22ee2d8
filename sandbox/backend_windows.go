// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

//go:build windows

package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

// lowIntegritySID is the mandatory label applied to sandboxed process
// tokens. Low integrity denies write access to almost every securable
// object a normal user session creates.
const lowIntegritySID = "S-1-16-4096"

// CPU rate control constants missing from x/sys/windows.
const (
	jobObjectCPURateControlEnable  = 0x1
	jobObjectCPURateControlHardCap = 0x4
)

// jobObjectCPURateControlInformation mirrors
// JOBOBJECT_CPU_RATE_CONTROL_INFORMATION. Rate is in units of 1/100 of
// a percent of total CPU capacity.
type jobObjectCPURateControlInformation struct {
	ControlFlags uint32
	Rate         uint32
}

// windowsBackend isolates sandboxes with one named job object per
// sandbox and hardens processes with restricted tokens and a low
// integrity label.
type windowsBackend struct {
	logger *slog.Logger

	mu           sync.Mutex
	initialized  bool
	nextHandle   uint64
	contexts     map[string]*windowsContext
	pidToContext map[int]string
	processes    map[int]windows.Handle
}

type windowsContext struct {
	id            string
	handle        ContextHandle
	job           windows.Handle
	allowedPaths  []string
	networkAccess bool
	pids          []int
}

// newPlatformBackend returns the Windows backend.
func newPlatformBackend(logger *slog.Logger) (Backend, error) {
	return &windowsBackend{
		logger:       logger,
		contexts:     make(map[string]*windowsContext),
		pidToContext: make(map[int]string),
		processes:    make(map[int]windows.Handle),
	}, nil
}

func (b *windowsBackend) Name() string { return "windows" }

func (b *windowsBackend) Initialize() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.initialized {
		return nil
	}

	// Probe job object support with a throwaway anonymous job.
	job, err := windows.CreateJobObject(nil, nil)
	if err != nil {
		return fmt.Errorf("%w: job objects unavailable: %v", ErrInitialization, err)
	}
	windows.CloseHandle(job)

	b.initialized = true
	b.logger.Info("windows backend initialized")
	return nil
}

func (b *windowsBackend) Shutdown() error {
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

// jobSecurityAttributes builds a protected DACL for sandbox job objects
// so that only the creating user, administrators, and SYSTEM can open or
// manipulate them.
func jobSecurityAttributes() (*windows.SecurityAttributes, error) {
	sd, err := windows.SecurityDescriptorFromString("D:P(A;;GA;;;OW)(A;;GA;;;BA)(A;;GA;;;SY)")
	if err != nil {
		return nil, err
	}
	sa := &windows.SecurityAttributes{SecurityDescriptor: sd}
	sa.Length = uint32(unsafe.Sizeof(*sa))
	return sa, nil
}

func (b *windowsBackend) CreateIsolationContext(id string, types []IsolationType) (ContextHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		return 0, fmt.Errorf("%w: backend not initialized", ErrInitialization)
	}
	if existing, ok := b.contexts[id]; ok {
		b.logger.Warn("isolation context already exists", "sandbox", id)
		return existing.handle, nil
	}

	// Namespace-style isolation types have no Windows equivalent; the
	// job object is the container regardless of what was requested.
	name, err := windows.UTF16PtrFromString("warden-" + id)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid sandbox id %q: %v", ErrConfiguration, id, err)
	}
	sa, err := jobSecurityAttributes()
	if err != nil {
		return 0, fmt.Errorf("failed to build job security descriptor for %q: %w", id, err)
	}
	job, err := windows.CreateJobObject(sa, name)
	if err != nil {
		return 0, fmt.Errorf("failed to create job object for %q: %w", id, err)
	}

	// Processes must not outlive their sandbox, even if this process
	// dies without destroying the context.
	info := windows.JOBOBJECT_EXTENDED_LIMIT_INFORMATION{
		BasicLimitInformation: windows.JOBOBJECT_BASIC_LIMIT_INFORMATION{
			LimitFlags: windows.JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE,
		},
	}
	if _, err := windows.SetInformationJobObject(job, windows.JobObjectExtendedLimitInformation,
		uintptr(unsafe.Pointer(&info)), uint32(unsafe.Sizeof(info))); err != nil {
		windows.CloseHandle(job)
		return 0, fmt.Errorf("failed to configure job object for %q: %w", id, err)
	}

	b.nextHandle++
	ctx := &windowsContext{
		id:     id,
		handle: ContextHandle(b.nextHandle),
		job:    job,
	}
	b.contexts[id] = ctx
	b.logger.Info("isolation context created", "sandbox", id)
	return ctx.handle, nil
}

func (b *windowsBackend) DestroyIsolationContext(id string) error {
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

	// TerminateJobObject kills every process in the job at once.
	if err := windows.TerminateJobObject(ctx.job, 1); err != nil {
		b.logger.Warn("failed to terminate job object", "sandbox", id, "error", err)
	}
	windows.CloseHandle(ctx.job)

	b.mu.Lock()
	for _, pid := range pids {
		if h, ok := b.processes[pid]; ok {
			windows.CloseHandle(h)
			delete(b.processes, pid)
		}
	}
	b.mu.Unlock()

	b.logger.Info("isolation context destroyed", "sandbox", id)
	return nil
}

func (b *windowsBackend) AddProcessToContext(id string, pid int) error {
	b.mu.Lock()
	ctx, ok := b.contexts[id]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("%w: no isolation context %q", ErrSandboxNotFound, id)
	}
	job := ctx.job
	b.mu.Unlock()

	h, err := windows.OpenProcess(
		windows.PROCESS_SET_QUOTA|windows.PROCESS_TERMINATE|windows.SYNCHRONIZE,
		false, uint32(pid))
	if err != nil {
		return fmt.Errorf("failed to open process %d: %w", pid, err)
	}
	if err := windows.AssignProcessToJobObject(job, h); err != nil {
		windows.CloseHandle(h)
		return fmt.Errorf("failed to assign process %d to job: %w", pid, err)
	}

	b.mu.Lock()
	if ctx, ok := b.contexts[id]; ok {
		ctx.pids = append(ctx.pids, pid)
		b.pidToContext[pid] = id
		b.processes[pid] = h
	} else {
		windows.CloseHandle(h)
	}
	b.mu.Unlock()
	return nil
}

func (b *windowsBackend) SetMemoryLimit(id string, limitBytes uint64) error {
	b.mu.Lock()
	ctx, ok := b.contexts[id]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: no isolation context %q", ErrSandboxNotFound, id)
	}

	info := windows.JOBOBJECT_EXTENDED_LIMIT_INFORMATION{
		BasicLimitInformation: windows.JOBOBJECT_BASIC_LIMIT_INFORMATION{
			LimitFlags: windows.JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE |
				windows.JOB_OBJECT_LIMIT_JOB_MEMORY,
		},
		JobMemoryLimit: uintptr(limitBytes),
	}
	if _, err := windows.SetInformationJobObject(ctx.job, windows.JobObjectExtendedLimitInformation,
		uintptr(unsafe.Pointer(&info)), uint32(unsafe.Sizeof(info))); err != nil {
		b.logger.Warn("cannot set job memory limit, not enforced",
			"sandbox", id, "error", err)
		return nil
	}
	b.logger.Debug("job memory limit set", "sandbox", id, "bytes", limitBytes)
	return nil
}

func (b *windowsBackend) SetCPULimit(id string, percent uint32) error {
	b.mu.Lock()
	ctx, ok := b.contexts[id]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: no isolation context %q", ErrSandboxNotFound, id)
	}
	if percent == 0 || percent > 100 {
		b.logger.Warn("cpu percent out of range, not enforced", "sandbox", id, "percent", percent)
		return nil
	}

	info := jobObjectCPURateControlInformation{
		ControlFlags: jobObjectCPURateControlEnable | jobObjectCPURateControlHardCap,
		Rate:         percent * 100,
	}
	if _, err := windows.SetInformationJobObject(ctx.job, windows.JobObjectCpuRateControlInformation,
		uintptr(unsafe.Pointer(&info)), uint32(unsafe.Sizeof(info))); err != nil {
		b.logger.Warn("cannot set job cpu rate, not enforced", "sandbox", id, "error", err)
		return nil
	}
	b.logger.Debug("job cpu rate set", "sandbox", id, "percent", percent)
	return nil
}

func (b *windowsBackend) SetProcessLimit(id string, maxProcesses uint32) error {
	b.mu.Lock()
	ctx, ok := b.contexts[id]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: no isolation context %q", ErrSandboxNotFound, id)
	}

	info := windows.JOBOBJECT_EXTENDED_LIMIT_INFORMATION{
		BasicLimitInformation: windows.JOBOBJECT_BASIC_LIMIT_INFORMATION{
			LimitFlags: windows.JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE |
				windows.JOB_OBJECT_LIMIT_ACTIVE_PROCESS,
			ActiveProcessLimit: maxProcesses,
		},
	}
	if _, err := windows.SetInformationJobObject(ctx.job, windows.JobObjectExtendedLimitInformation,
		uintptr(unsafe.Pointer(&info)), uint32(unsafe.Sizeof(info))); err != nil {
		b.logger.Warn("cannot set job process limit, not enforced",
			"sandbox", id, "error", err)
		return nil
	}
	b.logger.Debug("job process limit set", "sandbox", id, "max", maxProcesses)
	return nil
}

func (b *windowsBackend) SetFileSystemAccess(id string, allowedPaths []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	ctx, ok := b.contexts[id]
	if !ok {
		return fmt.Errorf("%w: no isolation context %q", ErrSandboxNotFound, id)
	}
	ctx.allowedPaths = append([]string(nil), allowedPaths...)
	// Job objects do not confine filesystem access; the low integrity
	// label blocks writes and the Manager enforces path policy.
	b.logger.Debug("filesystem access recorded", "sandbox", id, "paths", len(allowedPaths))
	return nil
}

func (b *windowsBackend) SetNetworkAccess(id string, enabled bool) error {
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

func (b *windowsBackend) CreateSandboxedProcess(ctx context.Context, executable string, args []string, id string, hardening Hardening) (int, error) {
	b.mu.Lock()
	ictx, ok := b.contexts[id]
	if !ok {
		b.mu.Unlock()
		return 0, fmt.Errorf("%w: no isolation context %q", ErrSandboxNotFound, id)
	}
	job := ictx.job
	b.mu.Unlock()

	token, err := b.processToken(hardening)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrProcessCreation, err)
	}
	defer token.Close()

	appName, err := windows.UTF16PtrFromString(executable)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid executable path: %v", ErrProcessCreation, err)
	}
	cmdLine, err := windows.UTF16PtrFromString(
		windows.ComposeCommandLine(append([]string{executable}, args...)))
	if err != nil {
		return 0, fmt.Errorf("%w: invalid arguments: %v", ErrProcessCreation, err)
	}
	env := utf16EnvBlock([]string{
		"SystemRoot=C:\\Windows",
		"WARDEN_SANDBOX_ID=" + id,
	})

	// The process starts suspended so it can be placed into the job
	// before it executes any caller code.
	si := &windows.StartupInfo{}
	si.Cb = uint32(unsafe.Sizeof(*si))
	pi := &windows.ProcessInformation{}
	flags := uint32(windows.CREATE_SUSPENDED |
		windows.CREATE_UNICODE_ENVIRONMENT |
		windows.CREATE_NEW_PROCESS_GROUP)
	if err := windows.CreateProcessAsUser(token, appName, cmdLine, nil, nil, false,
		flags, &env[0], nil, si, pi); err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrProcessCreation, executable, err)
	}

	if err := windows.AssignProcessToJobObject(job, pi.Process); err != nil {
		windows.TerminateProcess(pi.Process, 1)
		windows.CloseHandle(pi.Thread)
		windows.CloseHandle(pi.Process)
		return 0, fmt.Errorf("%w: cannot assign to job: %v", ErrProcessCreation, err)
	}
	if _, err := windows.ResumeThread(pi.Thread); err != nil {
		windows.TerminateProcess(pi.Process, 1)
		windows.CloseHandle(pi.Thread)
		windows.CloseHandle(pi.Process)
		return 0, fmt.Errorf("%w: cannot resume process: %v", ErrProcessCreation, err)
	}
	windows.CloseHandle(pi.Thread)

	pid := int(pi.ProcessId)
	b.mu.Lock()
	if ictx, ok := b.contexts[id]; ok {
		ictx.pids = append(ictx.pids, pid)
		b.pidToContext[pid] = id
		b.processes[pid] = pi.Process
	}
	b.mu.Unlock()

	// Reap the process and drop its binding when it exits.
	go func() {
		windows.WaitForSingleObject(pi.Process, windows.INFINITE)
		b.mu.Lock()
		if ictx, ok := b.contexts[id]; ok {
			ictx.pids = removePID(ictx.pids, pid)
		}
		delete(b.pidToContext, pid)
		if h, ok := b.processes[pid]; ok {
			windows.CloseHandle(h)
			delete(b.processes, pid)
		}
		b.mu.Unlock()
		b.logger.Info("sandboxed process exited", "sandbox", id, "pid", pid)
	}()

	b.logger.Info("sandboxed process created", "sandbox", id, "pid", pid, "executable", executable)
	return pid, nil
}

// processToken builds the primary token for a sandboxed process.
// RestrictPrivileges produces a restricted token with all privileges
// dropped; RestrictSyscalls (which has no Windows analogue) maps to the
// low integrity label.
func (b *windowsBackend) processToken(hardening Hardening) (windows.Token, error) {
	var primary windows.Token
	if err := windows.OpenProcessToken(windows.CurrentProcess(),
		windows.TOKEN_DUPLICATE|windows.TOKEN_QUERY|windows.TOKEN_ASSIGN_PRIMARY,
		&primary); err != nil {
		return 0, fmt.Errorf("failed to open process token: %w", err)
	}
	defer primary.Close()

	var token windows.Token
	if hardening.RestrictPrivileges {
		if err := windows.CreateRestrictedToken(primary, windows.DISABLE_MAX_PRIVILEGE,
			0, nil, 0, nil, 0, nil, &token); err != nil {
			return 0, fmt.Errorf("failed to create restricted token: %w", err)
		}
	} else {
		if err := windows.DuplicateTokenEx(primary, windows.MAXIMUM_ALLOWED, nil,
			windows.SecurityIdentification, windows.TokenPrimary, &token); err != nil {
			return 0, fmt.Errorf("failed to duplicate token: %w", err)
		}
	}

	if hardening.RestrictSyscalls {
		if err := setLowIntegrity(token); err != nil {
			token.Close()
			return 0, err
		}
	}
	return token, nil
}

func setLowIntegrity(token windows.Token) error {
	sid, err := windows.StringToSid(lowIntegritySID)
	if err != nil {
		return fmt.Errorf("failed to parse integrity sid: %w", err)
	}
	label := windows.Tokenmandatorylabel{
		Label: windows.SIDAndAttributes{
			Sid:        sid,
			Attributes: windows.SE_GROUP_INTEGRITY,
		},
	}
	if err := windows.SetTokenInformation(token, windows.TokenIntegrityLevel,
		(*byte)(unsafe.Pointer(&label)), label.Size()); err != nil {
		return fmt.Errorf("failed to set integrity level: %w", err)
	}
	return nil
}

func (b *windowsBackend) TerminateProcess(pid int) error {
	b.mu.Lock()
	h, ok := b.processes[pid]
	b.mu.Unlock()

	if !ok {
		var err error
		h, err = windows.OpenProcess(windows.PROCESS_TERMINATE|windows.SYNCHRONIZE,
			false, uint32(pid))
		if err != nil {
			// Already gone.
			return nil
		}
		defer windows.CloseHandle(h)
	}

	// No graceful signal exists for arbitrary Windows processes.
	if err := windows.TerminateProcess(h, 1); err != nil {
		return nil
	}
	windows.WaitForSingleObject(h, uint32(terminateGrace/time.Millisecond))
	return nil
}

func (b *windowsBackend) ResourceUsage(id string) (Usage, error) {
	b.mu.Lock()
	ctx, ok := b.contexts[id]
	b.mu.Unlock()
	if !ok {
		return Usage{}, fmt.Errorf("%w: no isolation context %q", ErrSandboxNotFound, id)
	}

	var usage Usage

	var acct windows.JOBOBJECT_BASIC_ACCOUNTING_INFORMATION
	if err := windows.QueryInformationJobObject(ctx.job, windows.JobObjectBasicAccountingInformation,
		uintptr(unsafe.Pointer(&acct)), uint32(unsafe.Sizeof(acct)), nil); err == nil {
		// Accounting times are in 100-nanosecond ticks.
		usage.CPUTime = time.Duration(acct.TotalUserTime+acct.TotalKernelTime) * 100
	}

	var ext windows.JOBOBJECT_EXTENDED_LIMIT_INFORMATION
	if err := windows.QueryInformationJobObject(ctx.job, windows.JobObjectExtendedLimitInformation,
		uintptr(unsafe.Pointer(&ext)), uint32(unsafe.Sizeof(ext)), nil); err == nil {
		usage.MemoryBytes = uint64(ext.PeakJobMemoryUsed)
	}
	return usage, nil
}

func (b *windowsBackend) Capabilities() Capabilities {
	return Capabilities{
		Platform:         "windows",
		JobObjects:       true,
		RestrictedTokens: true,
		IntegrityLevels:  true,
	}
}

// utf16EnvBlock encodes an environment as the double-NUL terminated
// UTF-16 block CreateProcess expects.
func utf16EnvBlock(env []string) []uint16 {
	var block []uint16
	for _, kv := range env {
		u, err := windows.UTF16FromString(kv)
		if err != nil {
			continue
		}
		block = append(block, u...)
	}
	return append(block, 0)
}
