// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package policycheck

import (
	"strings"
	"testing"
)

func TestIsPathSafe(t *testing.T) {
	tests := []struct {
		name string
		path string
		want bool
	}{
		{"unix absolute", "/tmp/work", true},
		{"unix nested", "/home/user/project/src", true},
		{"windows drive", `C:\Users\agent\work`, true},
		{"windows forward slash", "C:/Users/agent/work", true},
		{"unc path", `\\server\share\dir`, true},
		{"empty", "", false},
		{"relative", "tmp/work", false},
		{"dot relative", "./work", false},
		{"traversal", "/tmp/../etc/passwd", false},
		{"traversal backslash", `C:\work\..\Windows`, false},
		{"null byte", "/tmp/\x00evil", false},
		{"newline", "/tmp/a\nb", false},
		{"encoded traversal", "/tmp/%2e%2e/etc", false},
		{"encoded slash", "/tmp/a%2fb", false},
		{"encoded null", "/tmp/a%00b", false},
		{"double encoded", "/tmp/%252e%252e", false},
		{"too long", "/" + strings.Repeat("a", MaxPathLength), false},
		{"invalid utf8", "/tmp/\xff\xfe", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsPathSafe(tt.path); got != tt.want {
				t.Errorf("IsPathSafe(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestIsValidExecutable(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/usr/bin/python3", true},
		{"/bin/echo", true},
		{`C:\Windows\System32\where.exe`, true},
		{"/usr/bin/env python", false}, // space
		{"/bin/sh -c 'evil'", false},
		{"/bin/echo;rm", false},
		{"/bin/$(whoami)", false},
		{"/bin/a|b", false},
		{"relative/bin", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsValidExecutable(tt.path); got != tt.want {
			t.Errorf("IsValidExecutable(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestIsValidIdentifier(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"s1", true},
		{"media-pipeline.worker_3", true},
		{"A", true},
		{"", false},
		{".hidden", false},
		{"-flag", false},
		{"has space", false},
		{"has/slash", false},
		{"üñíçø∂é", false},
		{strings.Repeat("x", MaxIdentifierLength), true},
		{strings.Repeat("x", MaxIdentifierLength+1), false},
	}

	for _, tt := range tests {
		if got := IsValidIdentifier(tt.id); got != tt.want {
			t.Errorf("IsValidIdentifier(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}
