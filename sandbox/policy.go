// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"fmt"
	"os"
	"strings"
)

// CheckPermission answers whether the sandbox holds a permission.
// Denials are recorded as violations and raised as events; the default
// is deny. An unknown id is a configuration error.
func (m *Manager) CheckPermission(id string, p Permission) error {
	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return ErrInitialization
	}
	rec, ok := m.records[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrConfiguration, id)
	}
	if rec.cfg.HasPermission(p) {
		m.mu.Unlock()
		return nil
	}
	msg := "permission not granted: " + string(p)
	m.recordViolationLocked(rec, msg)
	m.mu.Unlock()
	m.fireViolation(id, msg)
	return fmt.Errorf("%w: sandbox %q lacks %s", ErrPermissionDenied, id, p)
}

// CheckPathAccess answers whether the sandbox may perform a file
// operation on path. Denied paths are checked before allowed paths and
// always win; a path matching neither list is denied. Every denial is
// recorded.
func (m *Manager) CheckPathAccess(id, path string, p Permission) error {
	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return ErrInitialization
	}
	rec, ok := m.records[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrConfiguration, id)
	}

	deny := func(msg string, sentinel error) error {
		m.recordViolationLocked(rec, msg)
		m.mu.Unlock()
		m.fireViolation(id, msg)
		return fmt.Errorf("%w: %s", sentinel, msg)
	}

	if !m.validator.IsPathSafe(path) {
		return deny("unsafe path: "+path, ErrInvalidPath)
	}
	if !rec.cfg.HasPermission(p) {
		return deny("permission not granted: "+string(p), ErrPermissionDenied)
	}
	for _, denied := range rec.cfg.DeniedPaths {
		if pathWithin(path, denied) {
			return deny(fmt.Sprintf("path %q is denied by %q", path, denied), ErrPermissionDenied)
		}
	}
	for _, allowed := range rec.cfg.AllowedPaths {
		if pathWithin(path, allowed) {
			m.mu.Unlock()
			return nil
		}
	}
	return deny(fmt.Sprintf("path %q is outside all allowed paths", path), ErrPermissionDenied)
}

// CheckNetworkAccess answers whether the sandbox may reach a domain.
// Network access must be enabled, the network permission held, and the
// domain covered by the allow-list (exact or parent-domain suffix
// match).
func (m *Manager) CheckNetworkAccess(id, domain string) error {
	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return ErrInitialization
	}
	rec, ok := m.records[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrConfiguration, id)
	}

	deny := func(msg string) error {
		m.recordViolationLocked(rec, msg)
		m.mu.Unlock()
		m.fireViolation(id, msg)
		return fmt.Errorf("%w: %s", ErrNetworkRestricted, msg)
	}

	if !rec.cfg.EnableNetworkAccess {
		return deny("network access disabled for sandbox " + id)
	}
	if !rec.cfg.HasPermission(PermissionNetworkAccess) {
		return deny("network permission not granted")
	}
	for _, allowed := range rec.cfg.AllowedNetworkDomains {
		if domainMatches(domain, allowed) {
			m.mu.Unlock()
			return nil
		}
	}
	return deny(fmt.Sprintf("domain %q is not allow-listed", domain))
}

// RequestNetworkAccess records a dynamic network request for audit and
// refuses it. Policy is static: a sandbox's reachable domains are fixed
// by its config, never widened at runtime.
func (m *Manager) RequestNetworkAccess(id, domain string, port uint16) error {
	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return ErrInitialization
	}
	rec, ok := m.records[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrConfiguration, id)
	}
	msg := fmt.Sprintf("dynamic network access requested: %s:%d", domain, port)
	m.recordViolationLocked(rec, msg)
	m.mu.Unlock()
	m.fireViolation(id, msg)
	return fmt.Errorf("%w: dynamic access to %s:%d refused", ErrNetworkRestricted, domain, port)
}

// ReadFileInSandbox reads a file on behalf of the sandbox after the
// path passes the read-access policy check.
func (m *Manager) ReadFileInSandbox(id, path string) ([]byte, error) {
	if err := m.CheckPathAccess(id, path, PermissionReadFile); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q for sandbox %q: %w", path, id, err)
	}
	return data, nil
}

// WriteFileInSandbox writes a file on behalf of the sandbox after the
// path passes the write-access policy check.
func (m *Manager) WriteFileInSandbox(id, path string, data []byte) error {
	if err := m.CheckPathAccess(id, path, PermissionWriteFile); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %q for sandbox %q: %w", path, id, err)
	}
	return nil
}

// pathWithin reports whether path equals root or sits underneath it.
// Separators are compared uniformly so Windows paths behave the same as
// Unix paths; matching is by whole path segment, so /tmp/ab is not
// within /tmp/a.
func pathWithin(path, root string) bool {
	p := normalizePath(path)
	r := normalizePath(root)
	if p == r {
		return true
	}
	if !strings.HasSuffix(r, "/") {
		r += "/"
	}
	return strings.HasPrefix(p, r)
}

func normalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	for strings.HasSuffix(p, "/") && len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

// domainMatches reports whether domain is allowed, either exactly or as
// a subdomain of allowed.
func domainMatches(domain, allowed string) bool {
	domain = strings.ToLower(strings.TrimSuffix(domain, "."))
	allowed = strings.ToLower(strings.TrimSuffix(allowed, "."))
	if domain == allowed {
		return true
	}
	return strings.HasSuffix(domain, "."+allowed)
}
