// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// warden-sandbox runs commands inside policy-bounded sandboxes and
// inspects sandbox policy and platform capabilities.
//
// Usage:
//
//	warden-sandbox run [flags] -- <command> [args...]
//	warden-sandbox check [flags] <path>
//	warden-sandbox capabilities
//	warden-sandbox audit show <file>
//	warden-sandbox version
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/wardenhq/warden/lib/version"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	if os.Getenv("WARDEN_DEBUG") != "" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "run":
		err = runCmd(args, logger)
	case "check":
		err = checkCmd(args, logger)
	case "capabilities":
		err = capabilitiesCmd(args, logger)
	case "audit":
		err = auditCmd(args)
	case "version", "--version", "-v":
		fmt.Printf("warden-sandbox %s\n", version.Info())
		return
	case "help", "--help", "-h":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`warden-sandbox - Run commands in policy-bounded sandboxes

USAGE
    warden-sandbox <command> [flags] [-- <args>...]

COMMANDS
    run           Run a command in a sandbox
    check         Check a path against a sandbox policy
    capabilities  Show the isolation features of this host
    audit         Inspect an exported audit record
    version       Show version

EXAMPLES
    # Run a command confined to /tmp/work
    warden-sandbox run --allow-path=/tmp/work --allow-exec=/usr/bin/make -- /usr/bin/make

    # Run with a policy file and export the audit record afterwards
    warden-sandbox run --config=policy.yaml --audit-export=audit.bin -- /usr/bin/true

    # Check whether the policy admits a path
    warden-sandbox check --config=policy.yaml --permission=read_file /etc/passwd

    # Inspect a previous audit export
    warden-sandbox audit show audit.bin

ENVIRONMENT
    WARDEN_DEBUG  Enable debug logging
`)
}
