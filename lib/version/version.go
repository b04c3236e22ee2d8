// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package version exposes the build version stamped at link time.
package version

// version is overridden by the build with
// -ldflags "-X github.com/wardenhq/warden/lib/version.version=v1.2.3".
var version = "dev"

// Info returns the build version string.
func Info() string { return version }
