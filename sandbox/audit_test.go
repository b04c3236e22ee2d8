// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func TestAuditExportRoundTrip(t *testing.T) {
	mgr, backend, _ := newTestManager(t)
	mgr.SetResourceUsageCacheEnabled(true)

	if err := mgr.CreateSandbox("gone", DefaultConfig()); err != nil {
		t.Fatalf("CreateSandbox: %v", err)
	}
	backend.setUsage("gone", Usage{MemoryBytes: 2048, CPUTime: 4 * time.Second})
	if err := mgr.DestroySandbox("gone"); err != nil {
		t.Fatalf("DestroySandbox: %v", err)
	}

	if err := mgr.CreateSandbox("live", DefaultConfig()); err != nil {
		t.Fatalf("CreateSandbox: %v", err)
	}
	mgr.CheckPermission("live", PermissionNetworkAccess)

	var buf bytes.Buffer
	if err := mgr.ExportAudit(&buf); err != nil {
		t.Fatalf("ExportAudit: %v", err)
	}

	record, err := ReadAudit(&buf)
	if err != nil {
		t.Fatalf("ReadAudit: %v", err)
	}
	if record.Version != auditFormatVersion {
		t.Errorf("version = %d", record.Version)
	}
	if record.Backend != "fake" {
		t.Errorf("backend = %q", record.Backend)
	}
	if len(record.Snapshots) != 1 || record.Snapshots[0].SandboxID != "gone" {
		t.Fatalf("snapshots = %+v", record.Snapshots)
	}
	if record.Snapshots[0].MemoryBytes != 2048 {
		t.Errorf("snapshot memory = %d", record.Snapshots[0].MemoryBytes)
	}
	if len(record.Violations["live"]) != 1 {
		t.Errorf("violations = %+v", record.Violations)
	}
}

func TestAuditExportDeterministic(t *testing.T) {
	mgr, backend, _ := newTestManager(t)
	mgr.SetResourceUsageCacheEnabled(true)

	for _, id := range []string{"c", "a", "b"} {
		if err := mgr.CreateSandbox(id, DefaultConfig()); err != nil {
			t.Fatalf("CreateSandbox(%q): %v", id, err)
		}
		backend.setUsage(id, Usage{MemoryBytes: 1})
		if err := mgr.DestroySandbox(id); err != nil {
			t.Fatalf("DestroySandbox(%q): %v", id, err)
		}
	}

	var first, second bytes.Buffer
	if err := mgr.ExportAudit(&first); err != nil {
		t.Fatalf("first export: %v", err)
	}
	if err := mgr.ExportAudit(&second); err != nil {
		t.Fatalf("second export: %v", err)
	}
	if !bytes.Equal(first.Bytes(), second.Bytes()) {
		t.Error("repeated exports of the same state differ")
	}

	record, err := ReadAudit(&first)
	if err != nil {
		t.Fatalf("ReadAudit: %v", err)
	}
	var ids []string
	for _, snap := range record.Snapshots {
		ids = append(ids, snap.SandboxID)
	}
	if len(ids) != 3 || ids[0] != "a" || ids[1] != "b" || ids[2] != "c" {
		t.Errorf("snapshot order = %v, want [a b c]", ids)
	}
}

func TestAuditUninitialized(t *testing.T) {
	mgr := NewManager(Options{Logger: testLogger(), Backend: newFakeBackend()})
	var buf bytes.Buffer
	if err := mgr.ExportAudit(&buf); !errors.Is(err, ErrInitialization) {
		t.Errorf("ExportAudit: got %v, want ErrInitialization", err)
	}
}

func TestReadAuditRejectsGarbage(t *testing.T) {
	if _, err := ReadAudit(bytes.NewReader([]byte("not zstd"))); err == nil {
		t.Error("garbage input did not error")
	}
}
