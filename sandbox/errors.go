// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import "errors"

// Error taxonomy for the sandbox subsystem. Every public operation
// returns a value or an error wrapping exactly one of these sentinels;
// callers discriminate with errors.Is.
var (
	// ErrInitialization: the manager is not initialized, or backend
	// construction failed during Initialize.
	ErrInitialization = errors.New("sandbox manager not initialized")

	// ErrConfiguration: invalid policy configuration, or an operation
	// referenced an unknown sandbox id.
	ErrConfiguration = errors.New("sandbox configuration error")

	// ErrInvalidPath: a path failed the safety predicates.
	ErrInvalidPath = errors.New("invalid path")

	// ErrPermissionDenied: the sandbox policy denied the operation.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrProcessCreation: the backend could not spawn the process.
	ErrProcessCreation = errors.New("process creation failed")

	// ErrNetworkRestricted: network access denied by policy.
	ErrNetworkRestricted = errors.New("network access restricted")

	// ErrExecutionBlocked: host command execution denied.
	ErrExecutionBlocked = errors.New("execution blocked")

	// ErrSandboxNotFound: no live sandbox and no cached snapshot under
	// the queried id.
	ErrSandboxNotFound = errors.New("sandbox not found")

	// ErrFeatureDisabled: the operation requires a feature flag that is
	// off.
	ErrFeatureDisabled = errors.New("feature disabled")

	// ErrRestrictedOperation: the executable is not allow-listed for
	// the sandbox.
	ErrRestrictedOperation = errors.New("restricted operation")

	// ErrViolation marks an operation refused because it would breach
	// the sandbox's policy; the refusal is also recorded in the
	// sandbox's violation log.
	ErrViolation = errors.New("policy violation")
)
