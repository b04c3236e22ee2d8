// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/wardenhq/warden/lib/clock"
)

// fakeBackend is an in-memory Backend for manager tests. Usage readings
// are settable per sandbox.
type fakeBackend struct {
	mu          sync.Mutex
	initialized bool
	nextHandle  uint64
	contexts    map[string]ContextHandle
	isolation   map[string][]IsolationType
	usage       map[string]Usage
	memLimits   map[string]uint64
	cpuLimits   map[string]uint32
	procLimits  map[string]uint32
	spawned     []string
	terminated  []int
	destroyed   []string
	nextPID     int

	failSpawn error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		contexts:   make(map[string]ContextHandle),
		isolation:  make(map[string][]IsolationType),
		usage:      make(map[string]Usage),
		memLimits:  make(map[string]uint64),
		cpuLimits:  make(map[string]uint32),
		procLimits: make(map[string]uint32),
		nextPID:    1000,
	}
}

func (f *fakeBackend) setUsage(id string, u Usage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.usage[id] = u
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Initialize() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initialized = true
	return nil
}

func (f *fakeBackend) Shutdown() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initialized = false
	return nil
}

func (f *fakeBackend) CreateIsolationContext(id string, types []IsolationType) (ContextHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if h, ok := f.contexts[id]; ok {
		return h, nil
	}
	f.nextHandle++
	f.contexts[id] = ContextHandle(f.nextHandle)
	f.isolation[id] = append([]IsolationType(nil), types...)
	return ContextHandle(f.nextHandle), nil
}

func (f *fakeBackend) DestroyIsolationContext(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.contexts[id]; !ok {
		return ErrSandboxNotFound
	}
	delete(f.contexts, id)
	delete(f.usage, id)
	f.destroyed = append(f.destroyed, id)
	return nil
}

func (f *fakeBackend) AddProcessToContext(id string, pid int) error { return nil }

func (f *fakeBackend) SetMemoryLimit(id string, limitBytes uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.memLimits[id] = limitBytes
	return nil
}

func (f *fakeBackend) SetCPULimit(id string, percent uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cpuLimits[id] = percent
	return nil
}

func (f *fakeBackend) SetProcessLimit(id string, maxProcesses uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.procLimits[id] = maxProcesses
	return nil
}

func (f *fakeBackend) SetFileSystemAccess(id string, allowedPaths []string) error { return nil }
func (f *fakeBackend) SetNetworkAccess(id string, enabled bool) error             { return nil }

func (f *fakeBackend) CreateSandboxedProcess(ctx context.Context, executable string, args []string, id string, hardening Hardening) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSpawn != nil {
		return 0, f.failSpawn
	}
	if _, ok := f.contexts[id]; !ok {
		return 0, ErrSandboxNotFound
	}
	f.nextPID++
	f.spawned = append(f.spawned, executable)
	return f.nextPID, nil
}

func (f *fakeBackend) TerminateProcess(pid int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminated = append(f.terminated, pid)
	return nil
}

func (f *fakeBackend) ResourceUsage(id string) (Usage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.contexts[id]; !ok {
		return Usage{}, ErrSandboxNotFound
	}
	return f.usage[id], nil
}

func (f *fakeBackend) Capabilities() Capabilities {
	return Capabilities{Platform: "fake"}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestManager returns an initialized manager over a fake backend and
// a fake clock.
func newTestManager(t *testing.T) (*Manager, *fakeBackend, *clock.FakeClock) {
	t.Helper()
	backend := newFakeBackend()
	clk := clock.Fake(time.Unix(1_700_000_000, 0))
	mgr := NewManager(Options{
		Logger:  testLogger(),
		Clock:   clk,
		Backend: backend,
	})
	if err := mgr.Initialize(DefaultConfig()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(func() { mgr.Shutdown() })
	return mgr, backend, clk
}

func TestLifecycleScenarioCacheDisabled(t *testing.T) {
	mgr, backend, _ := newTestManager(t)

	cfg := DefaultConfig()
	cfg.AllowedPaths = []string{"/tmp/x"}
	cfg.Permissions = []Permission{PermissionReadFile}
	cfg.MaxMemoryUsage = 1024
	cfg.MaxCPUTime = 5 * time.Second
	if err := mgr.CreateSandbox("s1", cfg); err != nil {
		t.Fatalf("CreateSandbox: %v", err)
	}
	if got := backend.memLimits["s1"]; got != 1024 {
		t.Errorf("memory limit = %d, want 1024", got)
	}

	if err := mgr.CheckPathAccess("s1", "/tmp/x/file.txt", PermissionReadFile); err != nil {
		t.Errorf("allowed path denied: %v", err)
	}
	if err := mgr.CheckPathAccess("s1", "/etc/passwd", PermissionReadFile); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("outside path: got %v, want ErrPermissionDenied", err)
	}

	if err := mgr.DestroySandbox("s1"); err != nil {
		t.Fatalf("DestroySandbox: %v", err)
	}
	// Snapshot retention is off by default, so the id is simply gone.
	if _, err := mgr.ResourceUsage("s1"); !errors.Is(err, ErrSandboxNotFound) {
		t.Errorf("post-destroy usage: got %v, want ErrSandboxNotFound", err)
	}
}

func TestLifecycleScenarioCacheEnabled(t *testing.T) {
	mgr, backend, _ := newTestManager(t)
	mgr.SetResourceUsageCacheEnabled(true)

	cfg := DefaultConfig()
	cfg.AllowedPaths = []string{"/tmp/x"}
	if err := mgr.CreateSandbox("s1", cfg); err != nil {
		t.Fatalf("CreateSandbox: %v", err)
	}
	backend.setUsage("s1", Usage{MemoryBytes: 4096, CPUTime: 3 * time.Second})

	if err := mgr.DestroySandbox("s1"); err != nil {
		t.Fatalf("DestroySandbox: %v", err)
	}

	snap, err := mgr.ResourceUsage("s1")
	if err != nil {
		t.Fatalf("ResourceUsage after destroy: %v", err)
	}
	if snap.MemoryBytes != 4096 || snap.CPUTime != 3*time.Second {
		t.Errorf("snapshot = (%d, %v), want (4096, 3s)", snap.MemoryBytes, snap.CPUTime)
	}
	if !snap.Destroyed {
		t.Error("snapshot not marked destroyed")
	}

	detail, err := mgr.DetailedResourceUsage("s1")
	if err != nil {
		t.Fatalf("DetailedResourceUsage: %v", err)
	}
	if detail.Active {
		t.Error("destroyed sandbox reported active")
	}
	if !detail.Snapshot.Destroyed {
		t.Error("detailed snapshot not marked destroyed")
	}
}

func TestDeniedPathsAlwaysWin(t *testing.T) {
	mgr, _, _ := newTestManager(t)

	cfg := DefaultConfig()
	cfg.AllowedPaths = []string{"/data"}
	cfg.DeniedPaths = []string{"/data/secrets"}
	cfg.Permissions = []Permission{PermissionReadFile}
	if err := mgr.CreateSandbox("s1", cfg); err != nil {
		t.Fatalf("CreateSandbox: %v", err)
	}

	if err := mgr.CheckPathAccess("s1", "/data/ok.txt", PermissionReadFile); err != nil {
		t.Errorf("allowed path denied: %v", err)
	}
	if err := mgr.CheckPathAccess("s1", "/data/secrets/key.pem", PermissionReadFile); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("denied path: got %v, want ErrPermissionDenied", err)
	}
	// Segment boundary: /data/secretsfoo is not under /data/secrets.
	if err := mgr.CheckPathAccess("s1", "/data/secretsfoo", PermissionReadFile); err != nil {
		t.Errorf("sibling path denied: %v", err)
	}
}

func TestUnknownSandboxIsConfigurationError(t *testing.T) {
	mgr, _, _ := newTestManager(t)

	if err := mgr.CheckPermission("ghost", PermissionReadFile); !errors.Is(err, ErrConfiguration) {
		t.Errorf("CheckPermission: got %v, want ErrConfiguration", err)
	}
	if err := mgr.CheckPathAccess("ghost", "/tmp/f", PermissionReadFile); !errors.Is(err, ErrConfiguration) {
		t.Errorf("CheckPathAccess: got %v, want ErrConfiguration", err)
	}
	if err := mgr.DestroySandbox("ghost"); !errors.Is(err, ErrConfiguration) {
		t.Errorf("DestroySandbox: got %v, want ErrConfiguration", err)
	}
}

func TestDestroyTwice(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	if err := mgr.CreateSandbox("s1", DefaultConfig()); err != nil {
		t.Fatalf("CreateSandbox: %v", err)
	}
	if err := mgr.DestroySandbox("s1"); err != nil {
		t.Fatalf("first destroy: %v", err)
	}
	if err := mgr.DestroySandbox("s1"); !errors.Is(err, ErrConfiguration) {
		t.Errorf("second destroy: got %v, want ErrConfiguration", err)
	}
}

func TestCreateExistingIDSucceeds(t *testing.T) {
	mgr, _, _ := newTestManager(t)

	cfg := DefaultConfig()
	cfg.AllowedPaths = []string{"/a"}
	if err := mgr.CreateSandbox("s1", cfg); err != nil {
		t.Fatalf("CreateSandbox: %v", err)
	}

	other := DefaultConfig()
	other.AllowedPaths = []string{"/b"}
	if err := mgr.CreateSandbox("s1", other); err != nil {
		t.Fatalf("CreateSandbox existing id: %v", err)
	}

	// The original config must survive the second create.
	got, err := mgr.SandboxConfig("s1")
	if err != nil {
		t.Fatalf("SandboxConfig: %v", err)
	}
	if len(got.AllowedPaths) != 1 || got.AllowedPaths[0] != "/a" {
		t.Errorf("config overwritten by duplicate create: %v", got.AllowedPaths)
	}
}

func TestInvalidSandboxID(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	for _, id := range []string{"", "../etc", "a b", "-lead"} {
		if err := mgr.CreateSandbox(id, DefaultConfig()); !errors.Is(err, ErrConfiguration) {
			t.Errorf("CreateSandbox(%q): got %v, want ErrConfiguration", id, err)
		}
	}
}

func TestCacheDisableFlagPurges(t *testing.T) {
	mgr, backend, _ := newTestManager(t)
	mgr.SetResourceUsageCacheEnabled(true)

	for _, id := range []string{"a", "b"} {
		if err := mgr.CreateSandbox(id, DefaultConfig()); err != nil {
			t.Fatalf("CreateSandbox(%q): %v", id, err)
		}
		backend.setUsage(id, Usage{MemoryBytes: 1})
		if err := mgr.DestroySandbox(id); err != nil {
			t.Fatalf("DestroySandbox(%q): %v", id, err)
		}
	}
	if got := len(mgr.CachedSnapshots()); got != 2 {
		t.Fatalf("cached snapshots = %d, want 2", got)
	}

	mgr.SetResourceUsageCacheEnabled(false)
	if got := len(mgr.CachedSnapshots()); got != 0 {
		t.Errorf("snapshots after disable = %d, want 0", got)
	}
	if _, err := mgr.ResourceUsage("a"); !errors.Is(err, ErrSandboxNotFound) {
		t.Errorf("purged id: got %v, want ErrSandboxNotFound", err)
	}
}

func TestPerSandboxCacheOverride(t *testing.T) {
	mgr, backend, _ := newTestManager(t)

	// Global retention stays off; the sandbox opts in for itself.
	cfg := DefaultConfig()
	cfg.EnableResourceUsageCache = true
	if err := mgr.CreateSandbox("keep", cfg); err != nil {
		t.Fatalf("CreateSandbox: %v", err)
	}
	backend.setUsage("keep", Usage{MemoryBytes: 7})
	if err := mgr.DestroySandbox("keep"); err != nil {
		t.Fatalf("DestroySandbox: %v", err)
	}

	snap, err := mgr.ResourceUsage("keep")
	if err != nil {
		t.Fatalf("ResourceUsage: %v", err)
	}
	if snap.MemoryBytes != 7 {
		t.Errorf("snapshot memory = %d, want 7", snap.MemoryBytes)
	}
}

func TestIDReuseIsFreshRecord(t *testing.T) {
	mgr, backend, _ := newTestManager(t)
	mgr.SetResourceUsageCacheEnabled(true)

	if err := mgr.CreateSandbox("s1", DefaultConfig()); err != nil {
		t.Fatalf("CreateSandbox: %v", err)
	}
	backend.setUsage("s1", Usage{MemoryBytes: 100})
	if err := mgr.DestroySandbox("s1"); err != nil {
		t.Fatalf("DestroySandbox: %v", err)
	}

	// Recreating the id starts over: no inherited violations, live
	// usage resolution again, and its own destruction overwrites the
	// old snapshot.
	if err := mgr.CreateSandbox("s1", DefaultConfig()); err != nil {
		t.Fatalf("recreate: %v", err)
	}
	if vs, err := mgr.Violations("s1"); err != nil || len(vs) != 0 {
		t.Errorf("fresh record has violations %v (err %v)", vs, err)
	}
	backend.setUsage("s1", Usage{MemoryBytes: 200})
	if err := mgr.DestroySandbox("s1"); err != nil {
		t.Fatalf("second destroy: %v", err)
	}
	snap, err := mgr.ResourceUsage("s1")
	if err != nil {
		t.Fatalf("ResourceUsage: %v", err)
	}
	if snap.MemoryBytes != 200 {
		t.Errorf("snapshot memory = %d, want 200 (overwritten)", snap.MemoryBytes)
	}
}

func TestExecuteInSandboxAllowList(t *testing.T) {
	mgr, backend, _ := newTestManager(t)

	cfg := DefaultConfig()
	cfg.AllowedExecutables = []string{"/usr/bin/true"}
	if err := mgr.CreateSandbox("s1", cfg); err != nil {
		t.Fatalf("CreateSandbox: %v", err)
	}

	pid, err := mgr.ExecuteInSandbox(context.Background(), "s1", "/usr/bin/true", nil)
	if err != nil {
		t.Fatalf("ExecuteInSandbox: %v", err)
	}
	if pid == 0 {
		t.Error("pid not returned")
	}

	if _, err := mgr.ExecuteInSandbox(context.Background(), "s1", "/usr/bin/false", nil); !errors.Is(err, ErrRestrictedOperation) {
		t.Errorf("non-listed executable: got %v, want ErrRestrictedOperation", err)
	}
	if _, err := mgr.ExecuteInSandbox(context.Background(), "s1", "rm -rf /", nil); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("unsafe executable: got %v, want ErrInvalidPath", err)
	}
	if len(backend.spawned) != 1 {
		t.Errorf("spawned = %v, want exactly the allow-listed one", backend.spawned)
	}

	vs, err := mgr.Violations("s1")
	if err != nil {
		t.Fatalf("Violations: %v", err)
	}
	if len(vs) != 2 {
		t.Errorf("violations = %d, want 2", len(vs))
	}
}

func TestExecuteCommandHostAllowList(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	if _, err := mgr.ExecuteCommand("rm", []string{"-rf", "/"}); !errors.Is(err, ErrExecutionBlocked) {
		t.Errorf("blocked command: got %v, want ErrExecutionBlocked", err)
	}
	if _, err := mgr.ExecuteCommand("bash", []string{"-c", "true"}); !errors.Is(err, ErrExecutionBlocked) {
		t.Errorf("blocked shell: got %v, want ErrExecutionBlocked", err)
	}
}

func TestUninitializedOperations(t *testing.T) {
	mgr := NewManager(Options{Logger: testLogger(), Backend: newFakeBackend()})

	if err := mgr.CreateSandbox("s1", DefaultConfig()); !errors.Is(err, ErrInitialization) {
		t.Errorf("CreateSandbox: got %v, want ErrInitialization", err)
	}
	if _, err := mgr.ResourceUsage("s1"); !errors.Is(err, ErrInitialization) {
		t.Errorf("ResourceUsage: got %v, want ErrInitialization", err)
	}
	if err := mgr.CheckPathAccess("s1", "/tmp/f", PermissionReadFile); !errors.Is(err, ErrInitialization) {
		t.Errorf("CheckPathAccess: got %v, want ErrInitialization", err)
	}
	if mgr.IsInitialized() {
		t.Error("IsInitialized true before Initialize")
	}
}

func TestReinitializeAfterShutdown(t *testing.T) {
	backend := newFakeBackend()
	mgr := NewManager(Options{Logger: testLogger(), Backend: backend})
	if err := mgr.Initialize(DefaultConfig()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := mgr.CreateSandbox("s1", DefaultConfig()); err != nil {
		t.Fatalf("CreateSandbox: %v", err)
	}
	if err := mgr.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if mgr.IsInitialized() {
		t.Error("still initialized after Shutdown")
	}
	if err := mgr.Initialize(DefaultConfig()); err != nil {
		t.Fatalf("re-Initialize: %v", err)
	}
	defer mgr.Shutdown()
	if got := mgr.ActiveSandboxes(); len(got) != 0 {
		t.Errorf("sandboxes survived shutdown: %v", got)
	}
}

func TestNetworkAccessChecks(t *testing.T) {
	mgr, _, _ := newTestManager(t)

	closed := DefaultConfig()
	if err := mgr.CreateSandbox("closed", closed); err != nil {
		t.Fatalf("CreateSandbox: %v", err)
	}
	if err := mgr.CheckNetworkAccess("closed", "example.com"); !errors.Is(err, ErrNetworkRestricted) {
		t.Errorf("closed sandbox: got %v, want ErrNetworkRestricted", err)
	}

	open := DefaultConfig()
	open.EnableNetworkAccess = true
	open.Permissions = []Permission{PermissionNetworkAccess}
	open.AllowedNetworkDomains = []string{"example.com"}
	if err := mgr.CreateSandbox("open", open); err != nil {
		t.Fatalf("CreateSandbox: %v", err)
	}
	if err := mgr.CheckNetworkAccess("open", "example.com"); err != nil {
		t.Errorf("exact domain denied: %v", err)
	}
	if err := mgr.CheckNetworkAccess("open", "api.example.com"); err != nil {
		t.Errorf("subdomain denied: %v", err)
	}
	if err := mgr.CheckNetworkAccess("open", "evil-example.com"); !errors.Is(err, ErrNetworkRestricted) {
		t.Errorf("non-subdomain: got %v, want ErrNetworkRestricted", err)
	}

	if err := mgr.RequestNetworkAccess("open", "example.com", 443); !errors.Is(err, ErrNetworkRestricted) {
		t.Errorf("RequestNetworkAccess: got %v, want ErrNetworkRestricted", err)
	}
}

func TestPrivilegeSurface(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	if mgr.HasAdministratorPrivileges() {
		t.Error("HasAdministratorPrivileges = true")
	}
	if err := mgr.RequestPrivilegeElevation(); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("RequestPrivilegeElevation: got %v, want ErrPermissionDenied", err)
	}
	if len(mgr.CurrentPrivileges()) == 0 {
		t.Error("CurrentPrivileges empty")
	}
}

func TestEventsFire(t *testing.T) {
	var mu sync.Mutex
	var created, destroyed, violations []string

	backend := newFakeBackend()
	mgr := NewManager(Options{
		Logger:  testLogger(),
		Backend: backend,
		Events: Events{
			OnSandboxCreated: func(id string) {
				mu.Lock()
				created = append(created, id)
				mu.Unlock()
			},
			OnSandboxDestroyed: func(id string) {
				mu.Lock()
				destroyed = append(destroyed, id)
				mu.Unlock()
			},
			OnViolation: func(id, msg string) {
				mu.Lock()
				violations = append(violations, id+": "+msg)
				mu.Unlock()
			},
		},
	})
	if err := mgr.Initialize(DefaultConfig()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer mgr.Shutdown()

	if err := mgr.CreateSandbox("s1", DefaultConfig()); err != nil {
		t.Fatalf("CreateSandbox: %v", err)
	}
	mgr.CheckPermission("s1", PermissionNetworkAccess)
	if err := mgr.DestroySandbox("s1"); err != nil {
		t.Fatalf("DestroySandbox: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(created) != 1 || created[0] != "s1" {
		t.Errorf("created events = %v", created)
	}
	if len(destroyed) != 1 || destroyed[0] != "s1" {
		t.Errorf("destroyed events = %v", destroyed)
	}
	if len(violations) != 1 {
		t.Errorf("violation events = %v", violations)
	}
}

func TestViolationLogAndClear(t *testing.T) {
	mgr, _, clk := newTestManager(t)
	if err := mgr.CreateSandbox("s1", DefaultConfig()); err != nil {
		t.Fatalf("CreateSandbox: %v", err)
	}

	mgr.CheckPermission("s1", PermissionWriteFile)
	clk.Advance(time.Second)
	mgr.CheckPermission("s1", PermissionNetworkAccess)

	vs, err := mgr.Violations("s1")
	if err != nil {
		t.Fatalf("Violations: %v", err)
	}
	if len(vs) != 2 {
		t.Fatalf("violations = %d, want 2", len(vs))
	}
	if vs[0].ID == "" || vs[0].ID == vs[1].ID {
		t.Error("violation ids missing or duplicated")
	}
	if !vs[1].Time.After(vs[0].Time) {
		t.Error("violation times not ordered")
	}

	if err := mgr.ClearViolations("s1"); err != nil {
		t.Fatalf("ClearViolations: %v", err)
	}
	vs, _ = mgr.Violations("s1")
	if len(vs) != 0 {
		t.Errorf("violations after clear = %d", len(vs))
	}
}

func TestUpdateSandboxConfig(t *testing.T) {
	mgr, backend, _ := newTestManager(t)
	if err := mgr.CreateSandbox("s1", DefaultConfig()); err != nil {
		t.Fatalf("CreateSandbox: %v", err)
	}

	cfg := DefaultConfig()
	cfg.MaxMemoryUsage = 2048
	cfg.CPUPercent = 50
	cfg.MaxProcesses = 4
	cfg.AllowedPaths = []string{"/new"}
	cfg.Permissions = []Permission{PermissionReadFile}
	if err := mgr.UpdateSandboxConfig("s1", cfg); err != nil {
		t.Fatalf("UpdateSandboxConfig: %v", err)
	}

	if got := backend.memLimits["s1"]; got != 2048 {
		t.Errorf("memory limit = %d, want 2048", got)
	}
	if got := backend.cpuLimits["s1"]; got != 50 {
		t.Errorf("cpu limit = %d, want 50", got)
	}
	if got := backend.procLimits["s1"]; got != 4 {
		t.Errorf("process limit = %d, want 4", got)
	}
	if err := mgr.CheckPathAccess("s1", "/new/f", PermissionReadFile); err != nil {
		t.Errorf("updated allowed path denied: %v", err)
	}

	bad := DefaultConfig()
	bad.AllowedPaths = []string{"../escape"}
	if err := mgr.UpdateSandboxConfig("s1", bad); !errors.Is(err, ErrConfiguration) {
		t.Errorf("unsafe update: got %v, want ErrConfiguration", err)
	}

	if err := mgr.UpdateSandboxConfig("ghost", DefaultConfig()); !errors.Is(err, ErrConfiguration) {
		t.Errorf("update of unknown sandbox: got %v, want ErrConfiguration", err)
	}
}

func TestIsolationTypesFollowConfig(t *testing.T) {
	mgr, backend, _ := newTestManager(t)

	hardened := DefaultConfig()
	if err := mgr.CreateSandbox("hardened", hardened); err != nil {
		t.Fatalf("CreateSandbox: %v", err)
	}
	open := DefaultConfig()
	open.EnableNetworkAccess = true
	open.EnableSystemCalls = true
	if err := mgr.CreateSandbox("open", open); err != nil {
		t.Fatalf("CreateSandbox: %v", err)
	}

	has := func(types []IsolationType, want IsolationType) bool {
		for _, typ := range types {
			if typ == want {
				return true
			}
		}
		return false
	}

	for _, want := range []IsolationType{IsolationPID, IsolationMount, IsolationUTS, IsolationIPC, IsolationNet, IsolationUser} {
		if !has(backend.isolation["hardened"], want) {
			t.Errorf("hardened sandbox missing isolation type %q", want)
		}
	}
	for _, unwanted := range []IsolationType{IsolationNet, IsolationUser} {
		if has(backend.isolation["open"], unwanted) {
			t.Errorf("open sandbox requested isolation type %q", unwanted)
		}
	}
}

func TestSandboxedFileIO(t *testing.T) {
	mgr, _, _ := newTestManager(t)

	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.AllowedPaths = []string{dir}
	cfg.Permissions = []Permission{PermissionReadFile, PermissionWriteFile}
	if err := mgr.CreateSandbox("s1", cfg); err != nil {
		t.Fatalf("CreateSandbox: %v", err)
	}

	path := dir + "/note.txt"
	if err := mgr.WriteFileInSandbox("s1", path, []byte("hello")); err != nil {
		t.Fatalf("WriteFileInSandbox: %v", err)
	}
	data, err := mgr.ReadFileInSandbox("s1", path)
	if err != nil {
		t.Fatalf("ReadFileInSandbox: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("read back %q, want %q", data, "hello")
	}

	if _, err := mgr.ReadFileInSandbox("s1", "/etc/passwd"); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("outside read: got %v, want ErrPermissionDenied", err)
	}
}
