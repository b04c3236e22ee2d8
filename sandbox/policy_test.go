// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import "testing"

func TestPathWithin(t *testing.T) {
	tests := []struct {
		path string
		root string
		want bool
	}{
		{"/tmp/x/file.txt", "/tmp/x", true},
		{"/tmp/x", "/tmp/x", true},
		{"/tmp/x/", "/tmp/x", true},
		{"/tmp/xy", "/tmp/x", false},
		{"/tmp", "/tmp/x", false},
		{"/etc/passwd", "/tmp/x", false},
		{`C:\work\out.log`, `C:\work`, true},
		{`C:\worker`, `C:\work`, false},
		{"/", "/", true},
		{"/anything", "/", true},
	}
	for _, tt := range tests {
		if got := pathWithin(tt.path, tt.root); got != tt.want {
			t.Errorf("pathWithin(%q, %q) = %v, want %v", tt.path, tt.root, got, tt.want)
		}
	}
}

func TestDomainMatches(t *testing.T) {
	tests := []struct {
		domain  string
		allowed string
		want    bool
	}{
		{"example.com", "example.com", true},
		{"api.example.com", "example.com", true},
		{"EXAMPLE.COM", "example.com", true},
		{"example.com.", "example.com", true},
		{"evil-example.com", "example.com", false},
		{"example.com.evil.net", "example.com", false},
		{"com", "example.com", false},
	}
	for _, tt := range tests {
		if got := domainMatches(tt.domain, tt.allowed); got != tt.want {
			t.Errorf("domainMatches(%q, %q) = %v, want %v", tt.domain, tt.allowed, got, tt.want)
		}
	}
}
