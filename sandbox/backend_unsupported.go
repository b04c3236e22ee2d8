// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux && !windows && !darwin

package sandbox

import (
	"fmt"
	"log/slog"
	"runtime"
)

// newPlatformBackend reports that no backend exists for this OS.
func newPlatformBackend(logger *slog.Logger) (Backend, error) {
	return nil, fmt.Errorf("%w: no sandbox backend for %s", ErrInitialization, runtime.GOOS)
}
