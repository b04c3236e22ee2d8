// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Control-group interface file names and value formats, shared between
// the Linux backend and its tests. Kept free of build constraints so
// the formatting and parsing logic is exercised on every platform.

// cgroupCPUPeriodMicros is the cpu.max / cfs period the backend always
// uses. A percentage cap converts to a quota against this period.
const cgroupCPUPeriodMicros = 100000

func cgroupMemoryLimitFile(v2 bool) string {
	if v2 {
		return "memory.max"
	}
	return "memory.limit_in_bytes"
}

func cgroupMemoryUsageFile(v2 bool) string {
	if v2 {
		return "memory.current"
	}
	return "memory.usage_in_bytes"
}

func cgroupCPULimitFile(v2 bool) string {
	if v2 {
		return "cpu.max"
	}
	return "cpu.cfs_quota_us"
}

func cgroupCPUUsageFile(v2 bool) string {
	if v2 {
		return "cpu.stat"
	}
	return "cpuacct.usage"
}

func cgroupProcessLimitFile() string { return "pids.max" }

// cgroupCPULimitValue renders a percentage cap as the write payload for
// the CPU limit file: "<quota> <period>" on v2, bare quota on v1.
func cgroupCPULimitValue(percent uint32, v2 bool) string {
	quota := uint64(percent) * cgroupCPUPeriodMicros / 100
	if v2 {
		return fmt.Sprintf("%d %d", quota, cgroupCPUPeriodMicros)
	}
	return strconv.FormatUint(quota, 10)
}

// parseCgroupCPUStat extracts usage_usec from cpu.stat content.
func parseCgroupCPUStat(data string) (time.Duration, error) {
	for _, line := range strings.Split(data, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[0] == "usage_usec" {
			micros, err := strconv.ParseUint(fields[1], 10, 64)
			if err != nil {
				return 0, fmt.Errorf("malformed usage_usec in cpu.stat: %w", err)
			}
			return time.Duration(micros) * time.Microsecond, nil
		}
	}
	return 0, fmt.Errorf("no usage_usec field in cpu.stat")
}

// parseCgroupNanos parses a cpuacct.usage reading (nanoseconds).
func parseCgroupNanos(data string) (time.Duration, error) {
	nanos, err := strconv.ParseUint(strings.TrimSpace(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed cpuacct.usage value: %w", err)
	}
	return time.Duration(nanos), nil
}

// parseCgroupBytes parses a memory usage or limit reading.
func parseCgroupBytes(data string) (uint64, error) {
	trimmed := strings.TrimSpace(data)
	if trimmed == "max" {
		return 0, nil
	}
	bytes, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed memory value: %w", err)
	}
	return bytes, nil
}

// parseCgroupV2Path extracts the unified-hierarchy path ("0::<path>")
// from /proc/self/cgroup content.
func parseCgroupV2Path(content string) (string, error) {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "0::") {
			return line[3:], nil
		}
	}
	return "", fmt.Errorf("no cgroup v2 entry in /proc/self/cgroup")
}
