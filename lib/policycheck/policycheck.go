// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package policycheck provides pure validation predicates for paths,
// executables, and identifiers used in sandbox policies.
//
// The predicates are deliberately side-effect free: they never touch the
// filesystem, so callers can evaluate untrusted input without triggering
// symlink races or disclosure through stat timing. The sandbox manager
// consumes them through its PolicyValidator interface; embedders with
// stricter requirements can substitute their own implementation.
package policycheck

import (
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxPathLength is the longest path the predicates accept. Matches the
// Linux PATH_MAX limit; anything longer is rejected outright.
const MaxPathLength = 4096

// MaxIdentifierLength bounds sandbox identifiers.
const MaxIdentifierLength = 128

// Validator implements the sandbox manager's PolicyValidator interface
// with the default predicate set.
type Validator struct{}

// IsPathSafe reports whether path is acceptable as a policy path. A safe
// path is absolute, within length limits, free of null bytes, control
// characters, percent-encoding tricks, and parent-directory traversal.
func (Validator) IsPathSafe(path string) bool { return IsPathSafe(path) }

// IsValidExecutable reports whether path may appear in an executable
// allow-list.
func (Validator) IsValidExecutable(path string) bool { return IsValidExecutable(path) }

// IsValidIdentifier reports whether s is usable as a sandbox identifier.
func (Validator) IsValidIdentifier(s string) bool { return IsValidIdentifier(s) }

// IsPathSafe reports whether path is acceptable as a policy path.
func IsPathSafe(path string) bool {
	if path == "" || len(path) > MaxPathLength {
		return false
	}
	if !utf8.ValidString(path) {
		return false
	}
	if strings.ContainsRune(path, 0) {
		return false
	}
	// Policy paths are always absolute. Relative entries would make the
	// prefix match depend on the caller's working directory.
	if !isAbsolute(path) {
		return false
	}
	// Reject traversal before cleaning: a cleaned path hides the intent,
	// and denied-path prefixes must see the literal configured form.
	for _, segment := range strings.FieldsFunc(path, isSeparator) {
		if segment == ".." {
			return false
		}
	}
	if containsEncodingAttack(path) {
		return false
	}
	for _, r := range path {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}

// IsValidExecutable reports whether path may appear in an executable
// allow-list. The path must be safe and must not contain shell
// metacharacters: executables are invoked directly, never through a
// shell, and a metacharacter in the allow-list is a config mistake.
func IsValidExecutable(path string) bool {
	if !IsPathSafe(path) {
		return false
	}
	if strings.ContainsAny(path, "|&;<>$`\"'*?[]{}() \t\n") {
		return false
	}
	return true
}

// IsValidIdentifier reports whether s is usable as a sandbox identifier:
// 1 to MaxIdentifierLength characters from [A-Za-z0-9._-], not starting
// with a dot or dash.
func IsValidIdentifier(s string) bool {
	if s == "" || len(s) > MaxIdentifierLength {
		return false
	}
	if s[0] == '.' || s[0] == '-' {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '.' || c == '_' || c == '-':
		default:
			return false
		}
	}
	return true
}

// isAbsolute accepts both Unix absolute paths and Windows drive or UNC
// paths, independent of the host OS, so policies validate identically
// everywhere.
func isAbsolute(path string) bool {
	if strings.HasPrefix(path, "/") {
		return true
	}
	if len(path) >= 3 && isDriveLetter(path[0]) && path[1] == ':' && isSeparator(rune(path[2])) {
		return true
	}
	if strings.HasPrefix(path, `\\`) {
		return true
	}
	return filepath.IsAbs(path)
}

func isDriveLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isSeparator(r rune) bool { return r == '/' || r == '\\' }

// containsEncodingAttack detects percent-encoded traversal and null
// sequences that decode to rejected characters.
func containsEncodingAttack(path string) bool {
	lower := strings.ToLower(path)
	for _, pattern := range []string{
		"%2e%2e", // ".."
		"%2f",    // "/"
		"%5c",    // "\"
		"%00",    // null
		"..%2f",
		"..%5c",
		"%252e", // double-encoded "."
	} {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}
