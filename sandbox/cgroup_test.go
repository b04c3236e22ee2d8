// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"testing"
	"time"
)

func TestCgroupFileNames(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"memory limit v2", cgroupMemoryLimitFile(true), "memory.max"},
		{"memory limit v1", cgroupMemoryLimitFile(false), "memory.limit_in_bytes"},
		{"memory usage v2", cgroupMemoryUsageFile(true), "memory.current"},
		{"memory usage v1", cgroupMemoryUsageFile(false), "memory.usage_in_bytes"},
		{"cpu limit v2", cgroupCPULimitFile(true), "cpu.max"},
		{"cpu limit v1", cgroupCPULimitFile(false), "cpu.cfs_quota_us"},
		{"cpu usage v2", cgroupCPUUsageFile(true), "cpu.stat"},
		{"cpu usage v1", cgroupCPUUsageFile(false), "cpuacct.usage"},
		{"pids", cgroupProcessLimitFile(), "pids.max"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestCgroupCPULimitValue(t *testing.T) {
	tests := []struct {
		percent uint32
		v2      bool
		want    string
	}{
		{100, true, "100000 100000"},
		{50, true, "50000 100000"},
		{1, true, "1000 100000"},
		{100, false, "100000"},
		{25, false, "25000"},
	}
	for _, tt := range tests {
		if got := cgroupCPULimitValue(tt.percent, tt.v2); got != tt.want {
			t.Errorf("cgroupCPULimitValue(%d, v2=%v) = %q, want %q",
				tt.percent, tt.v2, got, tt.want)
		}
	}
}

func TestParseCgroupCPUStat(t *testing.T) {
	stat := "usage_usec 2500000\nuser_usec 2000000\nsystem_usec 500000\n"
	got, err := parseCgroupCPUStat(stat)
	if err != nil {
		t.Fatalf("parseCgroupCPUStat: %v", err)
	}
	if got != 2500*time.Millisecond {
		t.Errorf("usage = %v, want 2.5s", got)
	}

	if _, err := parseCgroupCPUStat("user_usec 10\n"); err == nil {
		t.Error("missing usage_usec did not error")
	}
	if _, err := parseCgroupCPUStat("usage_usec abc\n"); err == nil {
		t.Error("malformed usage_usec did not error")
	}
}

func TestParseCgroupNanos(t *testing.T) {
	got, err := parseCgroupNanos("1500000000\n")
	if err != nil {
		t.Fatalf("parseCgroupNanos: %v", err)
	}
	if got != 1500*time.Millisecond {
		t.Errorf("usage = %v, want 1.5s", got)
	}
	if _, err := parseCgroupNanos("not-a-number"); err == nil {
		t.Error("malformed value did not error")
	}
}

func TestParseCgroupBytes(t *testing.T) {
	tests := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{"4096\n", 4096, false},
		{"max\n", 0, false},
		{"0", 0, false},
		{"oops", 0, true},
	}
	for _, tt := range tests {
		got, err := parseCgroupBytes(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseCgroupBytes(%q): no error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseCgroupBytes(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseCgroupBytes(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseCgroupV2Path(t *testing.T) {
	content := "12:pids:/user.slice\n1:name=systemd:/init.scope\n0::/user.slice/session-2.scope\n"
	got, err := parseCgroupV2Path(content)
	if err != nil {
		t.Fatalf("parseCgroupV2Path: %v", err)
	}
	if got != "/user.slice/session-2.scope" {
		t.Errorf("path = %q", got)
	}

	if _, err := parseCgroupV2Path("12:pids:/user.slice\n"); err == nil {
		t.Error("missing unified entry did not error")
	}
}
