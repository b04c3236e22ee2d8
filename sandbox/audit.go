// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/wardenhq/warden/lib/codec"
)

// auditFormatVersion guards the export layout. Readers refuse versions
// they do not know.
const auditFormatVersion = 1

// AuditRecord is the exportable state of the manager: retained usage
// snapshots plus the violation logs of every live sandbox.
type AuditRecord struct {
	Version    int                    `cbor:"1,keyasint"`
	ExportedAt time.Time              `cbor:"2,keyasint"`
	Backend    string                 `cbor:"3,keyasint"`
	Snapshots  []UsageSnapshot        `cbor:"4,keyasint"`
	Violations map[string][]Violation `cbor:"5,keyasint"`
}

// AuditSnapshot assembles the current audit record. Ordering is
// deterministic so repeated exports of the same state are
// byte-identical.
func (m *Manager) AuditSnapshot() (AuditRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized {
		return AuditRecord{}, ErrInitialization
	}

	snaps := m.cache.all()
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].SandboxID < snaps[j].SandboxID })

	violations := make(map[string][]Violation, len(m.records))
	for id, rec := range m.records {
		if len(rec.violations) == 0 {
			continue
		}
		violations[id] = append([]Violation(nil), rec.violations...)
	}

	return AuditRecord{
		Version:    auditFormatVersion,
		ExportedAt: m.clk.Now(),
		Backend:    m.backend.Name(),
		Snapshots:  snaps,
		Violations: violations,
	}, nil
}

// ExportAudit writes the audit record to w as zstd-compressed
// deterministic CBOR.
func (m *Manager) ExportAudit(w io.Writer) error {
	record, err := m.AuditSnapshot()
	if err != nil {
		return err
	}
	data, err := codec.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode audit record: %w", err)
	}
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("failed to open compressor: %w", err)
	}
	if _, err := zw.Write(data); err != nil {
		zw.Close()
		return fmt.Errorf("failed to write audit record: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish audit record: %w", err)
	}
	return nil
}

// ReadAudit decodes an audit export produced by [Manager.ExportAudit].
func ReadAudit(r io.Reader) (AuditRecord, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return AuditRecord{}, fmt.Errorf("failed to open decompressor: %w", err)
	}
	defer zr.Close()
	data, err := io.ReadAll(zr)
	if err != nil {
		return AuditRecord{}, fmt.Errorf("failed to read audit record: %w", err)
	}
	var record AuditRecord
	if err := codec.Unmarshal(data, &record); err != nil {
		return AuditRecord{}, fmt.Errorf("failed to decode audit record: %w", err)
	}
	if record.Version != auditFormatVersion {
		return AuditRecord{}, fmt.Errorf("unsupported audit format version %d", record.Version)
	}
	return record, nil
}
