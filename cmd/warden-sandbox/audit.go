// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/wardenhq/warden/sandbox"
)

// auditCmd inspects audit records exported by "run --audit-export".
func auditCmd(args []string) error {
	if len(args) < 1 || args[0] != "show" {
		return fmt.Errorf("usage: warden-sandbox audit show <file>")
	}
	if len(args) != 2 {
		return fmt.Errorf("usage: warden-sandbox audit show <file>")
	}

	f, err := os.Open(args[1])
	if err != nil {
		return fmt.Errorf("failed to open audit file: %w", err)
	}
	defer f.Close()

	record, err := sandbox.ReadAudit(f)
	if err != nil {
		return err
	}

	fmt.Printf("exported: %s\nbackend:  %s\n", record.ExportedAt.Format("2006-01-02 15:04:05 MST"), record.Backend)
	fmt.Printf("snapshots: %d\n", len(record.Snapshots))
	for _, snap := range record.Snapshots {
		state := "live"
		if snap.Destroyed {
			state = "destroyed"
		}
		fmt.Printf("  %-20s %s  memory=%d bytes  cpu=%v  at=%s\n",
			snap.SandboxID, state, snap.MemoryBytes, snap.CPUTime,
			snap.Timestamp.Format("15:04:05"))
	}
	total := 0
	for _, vs := range record.Violations {
		total += len(vs)
	}
	fmt.Printf("violations: %d\n", total)
	for id, vs := range record.Violations {
		for _, v := range vs {
			fmt.Printf("  %-20s %s  %s\n", id, v.Time.Format("15:04:05"), v.Message)
		}
	}
	return nil
}
