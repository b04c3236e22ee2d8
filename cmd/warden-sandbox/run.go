// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/wardenhq/warden/sandbox"
)

// runCmd creates a sandbox, runs one command inside it, and tears the
// sandbox down when the command or the operator is done.
func runCmd(args []string, logger *slog.Logger) error {
	var (
		configPath  string
		sandboxID   string
		allowPaths  []string
		denyPaths   []string
		allowExecs  []string
		memoryMax   int64
		cpuTime     time.Duration
		cpuPercent  uint32
		maxProcs    uint32
		network     bool
		auditExport string
	)

	flags := pflag.NewFlagSet("run", pflag.ContinueOnError)
	flags.StringVar(&configPath, "config", "", "sandbox policy YAML file")
	flags.StringVar(&sandboxID, "id", "cli", "sandbox identifier")
	flags.StringArrayVar(&allowPaths, "allow-path", nil, "path prefix the command may touch (repeatable)")
	flags.StringArrayVar(&denyPaths, "deny-path", nil, "path prefix that is always refused (repeatable)")
	flags.StringArrayVar(&allowExecs, "allow-exec", nil, "executable the sandbox may spawn (repeatable)")
	flags.Int64Var(&memoryMax, "memory-max", 0, "memory ceiling in bytes (0 = default)")
	flags.DurationVar(&cpuTime, "cpu-time", 0, "CPU time budget (0 = default)")
	flags.Uint32Var(&cpuPercent, "cpu-percent", 0, "CPU rate cap in percent (0 = uncapped)")
	flags.Uint32Var(&maxProcs, "max-procs", 0, "active process cap (0 = uncapped)")
	flags.BoolVar(&network, "network", false, "enable network access")
	flags.StringVar(&auditExport, "audit-export", "", "write the audit record to this file afterwards")
	if err := flags.Parse(args); err != nil {
		return err
	}
	command := flags.Args()
	if len(command) > 0 && command[0] == "--" {
		command = command[1:]
	}
	if len(command) == 0 {
		return fmt.Errorf("no command specified; usage: warden-sandbox run [flags] -- <command> [args...]")
	}

	cfg, err := loadRunConfig(configPath)
	if err != nil {
		return err
	}

	manager := sandbox.NewManager(sandbox.Options{Logger: logger})
	if err := manager.Initialize(sandbox.DefaultConfig()); err != nil {
		return err
	}
	defer manager.Shutdown()

	// Bare command names are resolved through the manager's host
	// lookup allow-list before they hit the executable policy.
	if resolved, err := resolveExecutable(manager, command[0]); err == nil {
		command[0] = resolved
	}

	cfg.AllowedPaths = append(cfg.AllowedPaths, allowPaths...)
	cfg.DeniedPaths = append(cfg.DeniedPaths, denyPaths...)
	cfg.AllowedExecutables = append(cfg.AllowedExecutables, allowExecs...)
	cfg.AllowedExecutables = appendUnique(cfg.AllowedExecutables, command[0])
	if memoryMax > 0 {
		cfg.MaxMemoryUsage = memoryMax
	}
	if cpuTime > 0 {
		cfg.MaxCPUTime = cpuTime
	}
	if cpuPercent > 0 {
		cfg.CPUPercent = cpuPercent
	}
	if maxProcs > 0 {
		cfg.MaxProcesses = maxProcs
	}
	if network {
		cfg.EnableNetworkAccess = true
		cfg.Permissions = append(cfg.Permissions, sandbox.PermissionNetworkAccess)
	}
	cfg.EnableResourceUsageCache = true

	if err := manager.CreateSandbox(sandboxID, cfg); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pid, err := manager.ExecuteInSandbox(ctx, sandboxID, command[0], command[1:])
	if err != nil {
		return err
	}
	logger.Info("command running", "sandbox", sandboxID, "pid", pid)

	// Hold the sandbox open until the operator interrupts or the
	// process exits.
	waitForExit(ctx, pid)

	if err := manager.DestroySandbox(sandboxID); err != nil {
		return err
	}
	snap, err := manager.ResourceUsage(sandboxID)
	if err == nil {
		fmt.Fprintf(os.Stderr, "sandbox %s: memory %d bytes, cpu %v\n",
			sandboxID, snap.MemoryBytes, snap.CPUTime)
	}

	if auditExport != "" {
		f, err := os.Create(auditExport)
		if err != nil {
			return fmt.Errorf("failed to create audit file: %w", err)
		}
		defer f.Close()
		if err := manager.ExportAudit(f); err != nil {
			return err
		}
		logger.Info("audit record written", "path", auditExport)
	}
	return nil
}

// resolveExecutable turns a bare command name into an absolute path
// using the manager's host lookup commands. Absolute paths pass
// through untouched.
func resolveExecutable(manager *sandbox.Manager, command string) (string, error) {
	if strings.ContainsAny(command, `/\`) {
		return command, nil
	}
	out, err := manager.ExecuteCommand(sandbox.HostLookupCommand(), []string{command})
	if err != nil {
		return "", err
	}
	resolved := strings.TrimSpace(strings.SplitN(out, "\n", 2)[0])
	if resolved == "" {
		return "", fmt.Errorf("command %q not found on host", command)
	}
	return resolved, nil
}

// waitForExit polls until the sandboxed process is gone or the context
// is cancelled.
func waitForExit(ctx context.Context, pid int) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !pidAlive(pid) {
				return
			}
		}
	}
}

// pidAlive probes a process without signaling it. A lookup or signal
// failure means the process is gone.
func pidAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	if runtime.GOOS == "windows" {
		// FindProcess opens a handle on Windows; success means alive.
		process.Release()
		return true
	}
	return process.Signal(syscall.Signal(0)) == nil
}

func loadRunConfig(path string) (sandbox.Config, error) {
	if path == "" {
		cfg := sandbox.DefaultConfig()
		cfg.Permissions = []sandbox.Permission{
			sandbox.PermissionReadFile,
			sandbox.PermissionWriteFile,
			sandbox.PermissionExecuteFile,
		}
		return cfg, nil
	}
	return sandbox.LoadConfig(path)
}

func appendUnique(list []string, item string) []string {
	for _, existing := range list {
		if existing == item {
			return list
		}
	}
	return append(list, item)
}
