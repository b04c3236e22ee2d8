// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wardenhq/warden/lib/clock"
	"github.com/wardenhq/warden/lib/policycheck"
)

// PolicyValidator answers the pure safety questions the manager asks
// before touching any path or executable. [policycheck.Validator] is
// the default implementation.
type PolicyValidator interface {
	IsPathSafe(path string) bool
	IsValidExecutable(path string) bool
	IsValidIdentifier(s string) bool
}

// Violation is one recorded policy denial.
type Violation struct {
	ID      string    `cbor:"1,keyasint" yaml:"id"`
	Time    time.Time `cbor:"2,keyasint" yaml:"time"`
	Message string    `cbor:"3,keyasint" yaml:"message"`
}

// Events are optional callbacks raised by the manager. Set them before
// Initialize; they are invoked outside the manager's lock, so they may
// call back into the manager but must not block for long.
type Events struct {
	OnSandboxCreated        func(id string)
	OnSandboxDestroyed      func(id string)
	OnViolation             func(id, message string)
	OnResourceLimitExceeded func(id, resource string)
}

// Options configure a Manager. Zero values select the platform backend,
// the real clock, the default validator, and slog.Default().
type Options struct {
	Logger    *slog.Logger
	Clock     clock.Clock
	Validator PolicyValidator
	Events    Events

	// Backend overrides platform backend selection. Tests inject fakes
	// here.
	Backend Backend
}

// maxViolationLog bounds the per-sandbox violation log; the oldest
// entries are dropped first.
const maxViolationLog = 256

// record is the registry entry for one active sandbox. It is owned by
// the manager; callers only ever hold the id.
type record struct {
	id         string
	cfg        Config
	handle     ContextHandle
	created    time.Time
	monitored  bool
	pids       []int
	violations []Violation

	// Last reading taken by the resource sweep, and which limit
	// breaches have already been reported for it.
	usage       Usage
	memExceeded bool
	cpuExceeded bool
}

// Manager orchestrates sandbox lifecycle, policy checks, resource
// limits, and usage snapshots over one platform [Backend]. Snapshot
// retention starts disabled; flip it with
// [Manager.SetResourceUsageCacheEnabled] or per sandbox via
// [Config.EnableResourceUsageCache].
type Manager struct {
	logger    *slog.Logger
	clk       clock.Clock
	validator PolicyValidator
	events    Events

	mu           sync.Mutex
	initialized  bool
	backend      Backend
	injected     Backend
	defaultCfg   Config
	records      map[string]*record
	pidToSandbox map[int]string
	cache        *usageCache
	cacheEnabled bool

	stopMonitor chan struct{}
	monitorDone sync.WaitGroup
}

// NewManager returns an uninitialized Manager. Call Initialize before
// any sandbox operation.
func NewManager(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	validator := opts.Validator
	if validator == nil {
		validator = policycheck.Validator{}
	}
	return &Manager{
		logger:       logger,
		clk:          clk,
		validator:    validator,
		events:       opts.Events,
		injected:     opts.Backend,
		records:      make(map[string]*record),
		pidToSandbox: make(map[int]string),
		cache:        newUsageCache(),
	}
}

// Initialize installs the default sandbox config and brings up the
// platform backend. It fails atomically: on error no backend is held
// and the manager stays uninitialized. Re-initializing after Shutdown
// is permitted; initializing an initialized manager is a no-op.
func (m *Manager) Initialize(defaultCfg Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initialized {
		m.logger.Warn("manager already initialized")
		return nil
	}
	if err := m.validateConfigLocked(&defaultCfg); err != nil {
		return fmt.Errorf("invalid default config: %w", err)
	}

	backend := m.injected
	if backend == nil {
		var err error
		backend, err = newPlatformBackend(m.logger)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInitialization, err)
		}
	}
	if err := backend.Initialize(); err != nil {
		return fmt.Errorf("%w: backend initialization failed: %v", ErrInitialization, err)
	}

	m.backend = backend
	m.defaultCfg = defaultCfg
	m.initialized = true
	m.stopMonitor = make(chan struct{})
	m.monitorDone.Add(1)
	// Tickers are created here, not in the goroutine, so the monitor
	// is observable on the injected clock as soon as Initialize
	// returns.
	resources := m.clk.NewTicker(resourceSweepInterval)
	health := m.clk.NewTicker(healthSweepInterval)
	go m.monitorLoop(m.stopMonitor, resources, health)

	m.logger.Info("sandbox manager initialized", "backend", backend.Name())
	return nil
}

// IsInitialized reports whether Initialize has completed.
func (m *Manager) IsInitialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initialized
}

// Shutdown destroys every active sandbox, clears the snapshot cache,
// stops monitoring, and releases the backend. Safe to call on an
// uninitialized manager.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return nil
	}
	ids := make([]string, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	stop := m.stopMonitor
	m.mu.Unlock()

	sort.Strings(ids)
	for _, id := range ids {
		if err := m.DestroySandbox(id); err != nil {
			m.logger.Warn("failed to destroy sandbox during shutdown", "sandbox", id, "error", err)
		}
	}

	close(stop)
	m.monitorDone.Wait()

	m.mu.Lock()
	backend := m.backend
	m.backend = nil
	m.initialized = false
	m.cache.purge()
	m.mu.Unlock()

	if err := backend.Shutdown(); err != nil {
		return fmt.Errorf("backend shutdown: %w", err)
	}
	m.logger.Info("sandbox manager shut down")
	return nil
}

// CreateSandbox registers a sandbox under id with the given config and
// builds its isolation context. Creating an id that already exists is a
// logged success, not an error; the existing sandbox is untouched.
func (m *Manager) CreateSandbox(id string, cfg Config) error {
	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return ErrInitialization
	}
	if !m.validator.IsValidIdentifier(id) {
		m.mu.Unlock()
		return fmt.Errorf("%w: invalid sandbox id %q", ErrConfiguration, id)
	}
	if err := m.validateConfigLocked(&cfg); err != nil {
		m.mu.Unlock()
		return err
	}
	if _, ok := m.records[id]; ok {
		m.mu.Unlock()
		m.logger.Info("sandbox already exists", "sandbox", id)
		return nil
	}
	backend := m.backend
	m.mu.Unlock()

	handle, err := backend.CreateIsolationContext(id, isolationTypesFor(cfg))
	if err != nil {
		return fmt.Errorf("failed to create isolation context for %q: %w", id, err)
	}
	m.applyLimits(backend, id, cfg)
	if err := backend.SetFileSystemAccess(id, cfg.AllowedPaths); err != nil {
		m.logger.Warn("failed to record filesystem access", "sandbox", id, "error", err)
	}
	if err := backend.SetNetworkAccess(id, cfg.EnableNetworkAccess); err != nil {
		m.logger.Warn("failed to set network access", "sandbox", id, "error", err)
	}

	m.mu.Lock()
	if _, ok := m.records[id]; ok {
		// Lost a create race; the context we built is surplus.
		m.mu.Unlock()
		backend.DestroyIsolationContext(id)
		m.logger.Info("sandbox already exists", "sandbox", id)
		return nil
	}
	m.records[id] = &record{
		id:        id,
		cfg:       cfg.Clone(),
		handle:    handle,
		created:   m.clk.Now(),
		monitored: cfg.EnableSystemCalls,
	}
	m.mu.Unlock()

	m.logger.Info("sandbox created", "sandbox", id, "monitored", cfg.EnableSystemCalls)
	if m.events.OnSandboxCreated != nil {
		m.events.OnSandboxCreated(id)
	}
	return nil
}

// DestroySandbox terminates the sandbox's processes, releases its
// isolation context, and erases its registry entry. When snapshot
// retention applies (global switch or the sandbox's own override), the
// final usage reading is preserved in the cache before the entry goes.
// An unknown id is a configuration error.
func (m *Manager) DestroySandbox(id string) error {
	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return ErrInitialization
	}
	rec, ok := m.records[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: cannot destroy unknown sandbox %q", ErrConfiguration, id)
	}
	keepSnapshot := m.cacheEnabled || rec.cfg.EnableResourceUsageCache
	lastUsage := rec.usage
	delete(m.records, id)
	for _, pid := range rec.pids {
		delete(m.pidToSandbox, pid)
	}
	backend := m.backend
	m.mu.Unlock()

	// Read final accounting before the context (and its bookkeeping)
	// disappears. Process termination waits happen inside the backend,
	// outside our lock.
	final, err := backend.ResourceUsage(id)
	if err != nil {
		final = lastUsage
	}
	if err := backend.DestroyIsolationContext(id); err != nil {
		m.logger.Warn("failed to destroy isolation context", "sandbox", id, "error", err)
	}

	if keepSnapshot {
		m.mu.Lock()
		m.cache.put(UsageSnapshot{
			SandboxID:   id,
			MemoryBytes: final.MemoryBytes,
			CPUTime:     final.CPUTime,
			Timestamp:   m.clk.Now(),
			Destroyed:   true,
		})
		m.mu.Unlock()
	}

	m.logger.Info("sandbox destroyed", "sandbox", id, "snapshot_kept", keepSnapshot)
	if m.events.OnSandboxDestroyed != nil {
		m.events.OnSandboxDestroyed(id)
	}
	return nil
}

// ActiveSandboxes returns the ids of all live sandboxes, sorted.
func (m *Manager) ActiveSandboxes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SandboxConfig returns a copy of the sandbox's config.
func (m *Manager) SandboxConfig(id string) (Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized {
		return Config{}, ErrInitialization
	}
	rec, ok := m.records[id]
	if !ok {
		return Config{}, fmt.Errorf("%w: %q", ErrSandboxNotFound, id)
	}
	return rec.cfg.Clone(), nil
}

// UpdateSandboxConfig replaces the sandbox's config after re-validating
// it and re-applies resource limits. Monitoring attachment follows the
// new config's system-call setting.
func (m *Manager) UpdateSandboxConfig(id string, cfg Config) error {
	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return ErrInitialization
	}
	if err := m.validateConfigLocked(&cfg); err != nil {
		m.mu.Unlock()
		return err
	}
	rec, ok := m.records[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: unknown sandbox %q", ErrConfiguration, id)
	}
	rec.cfg = cfg.Clone()
	rec.monitored = cfg.EnableSystemCalls
	backend := m.backend
	m.mu.Unlock()

	m.applyLimits(backend, id, cfg)
	if err := backend.SetFileSystemAccess(id, cfg.AllowedPaths); err != nil {
		m.logger.Warn("failed to record filesystem access", "sandbox", id, "error", err)
	}
	if err := backend.SetNetworkAccess(id, cfg.EnableNetworkAccess); err != nil {
		m.logger.Warn("failed to set network access", "sandbox", id, "error", err)
	}
	m.logger.Info("sandbox config updated", "sandbox", id)
	return nil
}

// SetResourceLimits updates the memory and CPU time budgets of a live
// sandbox and pushes the memory limit to the backend.
func (m *Manager) SetResourceLimits(id string, maxMemory int64, maxCPUTime time.Duration) error {
	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return ErrInitialization
	}
	if maxMemory <= 0 || maxCPUTime <= 0 {
		m.mu.Unlock()
		return fmt.Errorf("%w: resource limits must be positive", ErrConfiguration)
	}
	rec, ok := m.records[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrSandboxNotFound, id)
	}
	rec.cfg.MaxMemoryUsage = maxMemory
	rec.cfg.MaxCPUTime = maxCPUTime
	backend := m.backend
	m.mu.Unlock()

	if err := backend.SetMemoryLimit(id, uint64(maxMemory)); err != nil {
		m.logger.Warn("failed to set memory limit", "sandbox", id, "error", err)
	}
	return nil
}

// ExecuteInSandbox spawns an allow-listed executable inside the
// sandbox's isolation context and returns its pid. Executables outside
// the sandbox's allow-list are refused as restricted operations and
// recorded as violations.
func (m *Manager) ExecuteInSandbox(ctx context.Context, id, executable string, args []string) (int, error) {
	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return 0, ErrInitialization
	}
	rec, ok := m.records[id]
	if !ok {
		m.mu.Unlock()
		return 0, fmt.Errorf("%w: %q", ErrConfiguration, id)
	}
	if !m.validator.IsValidExecutable(executable) {
		m.recordViolationLocked(rec, "unsafe executable path: "+executable)
		m.mu.Unlock()
		m.fireViolation(id, "unsafe executable path: "+executable)
		return 0, fmt.Errorf("%w: %q", ErrInvalidPath, executable)
	}
	allowed := false
	for _, exe := range rec.cfg.AllowedExecutables {
		if exe == executable {
			allowed = true
			break
		}
	}
	if !allowed {
		m.recordViolationLocked(rec, "execution not allow-listed: "+executable)
		m.mu.Unlock()
		m.fireViolation(id, "execution not allow-listed: "+executable)
		return 0, fmt.Errorf("%w: %q is not allow-listed for sandbox %q",
			ErrRestrictedOperation, executable, id)
	}
	hardening := Hardening{
		RestrictSyscalls:   !rec.cfg.EnableSystemCalls,
		RestrictPrivileges: true,
	}
	backend := m.backend
	m.mu.Unlock()

	pid, err := backend.CreateSandboxedProcess(ctx, executable, args, id, hardening)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	if rec, ok := m.records[id]; ok {
		rec.pids = append(rec.pids, pid)
		m.pidToSandbox[pid] = id
	}
	m.mu.Unlock()
	return pid, nil
}

// hostCommandAllowList is the full set of commands ExecuteCommand will
// run on the host. Everything else is blocked.
var hostCommandAllowList = map[string]bool{
	"which":     true,
	"where":     true,
	"where.exe": true,
}

// ExecuteCommand runs a host-side helper command from a tiny fixed
// allow-list (executable lookup tools only) and returns its combined
// output. Any other command is blocked.
func (m *Manager) ExecuteCommand(command string, args []string) (string, error) {
	if !hostCommandAllowList[command] {
		m.logger.Warn("host command blocked", "command", command)
		return "", fmt.Errorf("%w: %q", ErrExecutionBlocked, command)
	}
	out, err := exec.Command(command, args...).CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("%w: %q: %v", ErrExecutionBlocked, command, err)
	}
	return string(out), nil
}

// ResourceUsage resolves the usage of a sandbox id. Live sandboxes
// answer with their monitored counters; destroyed sandboxes answer from
// the snapshot cache when a snapshot was retained; otherwise the id is
// unknown.
func (m *Manager) ResourceUsage(id string) (UsageSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized {
		return UsageSnapshot{}, ErrInitialization
	}
	if rec, ok := m.records[id]; ok {
		return UsageSnapshot{
			SandboxID:   id,
			MemoryBytes: rec.usage.MemoryBytes,
			CPUTime:     rec.usage.CPUTime,
			Timestamp:   m.clk.Now(),
		}, nil
	}
	if snap, ok := m.cache.get(id); ok {
		return snap, nil
	}
	return UsageSnapshot{}, fmt.Errorf("%w: %q", ErrSandboxNotFound, id)
}

// DetailedUsage extends a usage reading with registry state.
type DetailedUsage struct {
	Snapshot       UsageSnapshot
	Active         bool
	ProcessCount   int
	ViolationCount int
	MemoryLimit    int64
	CPUTimeLimit   time.Duration
	Uptime         time.Duration
}

// DetailedResourceUsage resolves like [Manager.ResourceUsage] but adds
// limits, process and violation counts, and uptime for live sandboxes.
func (m *Manager) DetailedResourceUsage(id string) (DetailedUsage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized {
		return DetailedUsage{}, ErrInitialization
	}
	if rec, ok := m.records[id]; ok {
		return DetailedUsage{
			Snapshot: UsageSnapshot{
				SandboxID:   id,
				MemoryBytes: rec.usage.MemoryBytes,
				CPUTime:     rec.usage.CPUTime,
				Timestamp:   m.clk.Now(),
			},
			Active:         true,
			ProcessCount:   len(rec.pids),
			ViolationCount: len(rec.violations),
			MemoryLimit:    rec.cfg.MaxMemoryUsage,
			CPUTimeLimit:   rec.cfg.MaxCPUTime,
			Uptime:         m.clk.Now().Sub(rec.created),
		}, nil
	}
	if snap, ok := m.cache.get(id); ok {
		return DetailedUsage{Snapshot: snap}, nil
	}
	return DetailedUsage{}, fmt.Errorf("%w: %q", ErrSandboxNotFound, id)
}

// SetResourceUsageCacheEnabled flips the global snapshot retention
// switch. Disabling it purges every cached snapshot immediately;
// per-sandbox overrides still retain future snapshots for their own
// sandboxes.
func (m *Manager) SetResourceUsageCacheEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cacheEnabled == enabled {
		return
	}
	m.cacheEnabled = enabled
	if !enabled {
		n := m.cache.len()
		m.cache.purge()
		m.logger.Info("resource usage cache disabled", "purged", n)
	} else {
		m.logger.Info("resource usage cache enabled")
	}
}

// ResourceUsageCacheEnabled reports the global retention switch.
func (m *Manager) ResourceUsageCacheEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cacheEnabled
}

// ClearResourceUsageCache drops the cached snapshot for one id. Unknown
// ids are a no-op.
func (m *Manager) ClearResourceUsageCache(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.remove(id)
}

// ClearAllResourceUsageCaches drops every cached snapshot.
func (m *Manager) ClearAllResourceUsageCaches() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.purge()
}

// CachedSnapshots returns all retained snapshots, ordered by id.
func (m *Manager) CachedSnapshots() []UsageSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snaps := m.cache.all()
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].SandboxID < snaps[j].SandboxID })
	return snaps
}

// EnableMonitoring attaches or detaches the resource sweep for one
// sandbox.
func (m *Manager) EnableMonitoring(id string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized {
		return ErrInitialization
	}
	rec, ok := m.records[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrSandboxNotFound, id)
	}
	rec.monitored = enabled
	return nil
}

// Violations returns a copy of the sandbox's violation log, oldest
// first.
func (m *Manager) Violations(id string) ([]Violation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized {
		return nil, ErrInitialization
	}
	rec, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSandboxNotFound, id)
	}
	return append([]Violation(nil), rec.violations...), nil
}

// ClearViolations empties the sandbox's violation log.
func (m *Manager) ClearViolations(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized {
		return ErrInitialization
	}
	rec, ok := m.records[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrSandboxNotFound, id)
	}
	rec.violations = nil
	return nil
}

// Capabilities reports what the active backend supports.
func (m *Manager) Capabilities() (Capabilities, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized {
		return Capabilities{}, ErrInitialization
	}
	return m.backend.Capabilities(), nil
}

// CurrentPrivileges returns the static minimal privilege set sandboxed
// work runs with. The manager never escalates.
func (m *Manager) CurrentPrivileges() []string {
	return []string{"execute_allowed", "read_allowed_paths", "write_allowed_paths"}
}

// HasAdministratorPrivileges always reports false: the manager refuses
// to operate with elevated rights.
func (m *Manager) HasAdministratorPrivileges() bool { return false }

// RequestPrivilegeElevation always refuses.
func (m *Manager) RequestPrivilegeElevation() error {
	m.logger.Warn("privilege elevation requested and refused")
	return fmt.Errorf("%w: privilege elevation is not available", ErrPermissionDenied)
}

// DefaultSandboxConfig returns a copy of the default config installed
// by Initialize. Sandbox configs missing resource ceilings inherit
// from it.
func (m *Manager) DefaultSandboxConfig() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.defaultCfg.Clone()
}

// validateConfigLocked normalizes and validates a config in place.
// Missing resource ceilings inherit from the installed default config,
// or from the package defaults while Initialize is still validating
// that default itself.
func (m *Manager) validateConfigLocked(cfg *Config) error {
	fallback := m.defaultCfg
	if fallback.MaxMemoryUsage <= 0 {
		fallback.MaxMemoryUsage = DefaultMaxMemoryUsage
	}
	if fallback.MaxCPUTime <= 0 {
		fallback.MaxCPUTime = DefaultMaxCPUTime
	}
	if cfg.MaxMemoryUsage <= 0 {
		cfg.MaxMemoryUsage = fallback.MaxMemoryUsage
	}
	if cfg.MaxCPUTime <= 0 {
		cfg.MaxCPUTime = fallback.MaxCPUTime
	}
	for _, p := range append(append([]string{}, cfg.AllowedPaths...), cfg.DeniedPaths...) {
		if !m.validator.IsPathSafe(p) {
			return fmt.Errorf("%w: unsafe path %q", ErrConfiguration, p)
		}
	}
	for _, exe := range cfg.AllowedExecutables {
		if !m.validator.IsValidExecutable(exe) {
			return fmt.Errorf("%w: unsafe executable %q", ErrConfiguration, exe)
		}
	}
	for _, d := range cfg.AllowedNetworkDomains {
		if d == "" || strings.ContainsAny(d, " \t\n") {
			return fmt.Errorf("%w: invalid network domain %q", ErrConfiguration, d)
		}
	}
	return nil
}

// applyLimits pushes the config's resource limits to the backend.
// Limit failures are warnings: an unenforceable limit never blocks the
// sandbox.
func (m *Manager) applyLimits(backend Backend, id string, cfg Config) {
	if err := backend.SetMemoryLimit(id, uint64(cfg.MaxMemoryUsage)); err != nil {
		m.logger.Warn("failed to set memory limit", "sandbox", id, "error", err)
	}
	if cfg.CPUPercent > 0 {
		if err := backend.SetCPULimit(id, cfg.CPUPercent); err != nil {
			m.logger.Warn("failed to set cpu limit", "sandbox", id, "error", err)
		}
	}
	if cfg.MaxProcesses > 0 {
		if err := backend.SetProcessLimit(id, cfg.MaxProcesses); err != nil {
			m.logger.Warn("failed to set process limit", "sandbox", id, "error", err)
		}
	}
}

// isolationTypesFor derives the namespace request set from a config.
// Process, mount, uts, and ipc isolation are unconditional; network
// isolation applies whenever network access is disabled, and user
// isolation whenever system calls are restricted, so that hardened
// sandboxes run under a mapped unprivileged identity.
func isolationTypesFor(cfg Config) []IsolationType {
	types := []IsolationType{IsolationPID, IsolationMount, IsolationUTS, IsolationIPC}
	if !cfg.EnableNetworkAccess {
		types = append(types, IsolationNet)
	}
	if !cfg.EnableSystemCalls {
		types = append(types, IsolationUser)
	}
	return types
}

// recordViolationLocked appends to the violation log, dropping the
// oldest entry past the cap. Caller holds m.mu and is responsible for
// firing the event after unlocking.
func (m *Manager) recordViolationLocked(rec *record, message string) {
	rec.violations = append(rec.violations, Violation{
		ID:      uuid.NewString(),
		Time:    m.clk.Now(),
		Message: message,
	})
	if len(rec.violations) > maxViolationLog {
		rec.violations = rec.violations[len(rec.violations)-maxViolationLog:]
	}
	m.logger.Warn("sandbox violation", "sandbox", rec.id, "message", message)
}

func (m *Manager) fireViolation(id, message string) {
	if m.events.OnViolation != nil {
		m.events.OnViolation(id, message)
	}
}

// HostLookupCommand names the allow-listed executable-lookup tool for
// this OS, suitable for [Manager.ExecuteCommand].
func HostLookupCommand() string {
	if runtime.GOOS == "windows" {
		return "where.exe"
	}
	return "which"
}
