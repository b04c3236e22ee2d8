// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wardenhq/warden/sandbox"
)

// capabilitiesCmd probes and prints what the local platform backend
// supports.
func capabilitiesCmd(args []string, logger *slog.Logger) error {
	if len(args) != 0 {
		return fmt.Errorf("capabilities takes no arguments")
	}

	manager := sandbox.NewManager(sandbox.Options{Logger: logger})
	if err := manager.Initialize(sandbox.DefaultConfig()); err != nil {
		return err
	}
	defer manager.Shutdown()

	caps, err := manager.Capabilities()
	if err != nil {
		return err
	}
	doc := struct {
		Platform         string `yaml:"platform"`
		Namespaces       bool   `yaml:"namespaces"`
		CgroupVersion    int    `yaml:"cgroup_version"`
		SyscallFiltering bool   `yaml:"syscall_filtering"`
		JobObjects       bool   `yaml:"job_objects"`
		RestrictedTokens bool   `yaml:"restricted_tokens"`
		IntegrityLevels  bool   `yaml:"integrity_levels"`
	}{
		Platform:         caps.Platform,
		Namespaces:       caps.Namespaces,
		CgroupVersion:    caps.CgroupVersion,
		SyscallFiltering: caps.SyscallFiltering,
		JobObjects:       caps.JobObjects,
		RestrictedTokens: caps.RestrictedTokens,
		IntegrityLevels:  caps.IntegrityLevels,
	}
	out, err := yaml.Marshal(&doc)
	if err != nil {
		return err
	}
	os.Stdout.Write(out)
	return nil
}
