// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/wardenhq/warden/sandbox"
)

// checkCmd evaluates one path against a sandbox policy file and reports
// the decision. Exit status follows the decision so scripts can gate on
// it.
func checkCmd(args []string, logger *slog.Logger) error {
	var (
		configPath string
		permission string
	)

	var printPolicy bool

	flags := pflag.NewFlagSet("check", pflag.ContinueOnError)
	flags.StringVar(&configPath, "config", "", "sandbox policy YAML file (required)")
	flags.StringVar(&permission, "permission", string(sandbox.PermissionReadFile),
		"permission category to check (read_file, write_file, ...)")
	flags.BoolVar(&printPolicy, "print", false, "print the effective policy before the decision")
	if err := flags.Parse(args); err != nil {
		return err
	}
	rest := flags.Args()
	if len(rest) != 1 {
		return fmt.Errorf("usage: warden-sandbox check --config=<file> [--permission=<p>] <path>")
	}
	path := rest[0]
	if configPath == "" {
		return fmt.Errorf("--config is required")
	}

	cfg, err := sandbox.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if printPolicy {
		doc, err := cfg.MarshalYAMLDocument()
		if err != nil {
			return err
		}
		os.Stderr.Write(doc)
	}

	manager := sandbox.NewManager(sandbox.Options{Logger: logger})
	if err := manager.Initialize(sandbox.DefaultConfig()); err != nil {
		return err
	}
	defer manager.Shutdown()

	const id = "policy-check"
	if err := manager.CreateSandbox(id, cfg); err != nil {
		return err
	}

	err = manager.CheckPathAccess(id, path, sandbox.Permission(permission))
	switch {
	case err == nil:
		fmt.Printf("allowed: %s (%s)\n", path, permission)
		return nil
	case errors.Is(err, sandbox.ErrPermissionDenied), errors.Is(err, sandbox.ErrInvalidPath):
		fmt.Printf("denied: %s (%s)\n", path, permission)
		return fmt.Errorf("access denied: %w", err)
	default:
		return err
	}
}
