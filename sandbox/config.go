// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Permission is a category of action a sandbox may be granted.
type Permission string

// Permission categories. A permission absent from Config.Permissions is
// denied.
const (
	PermissionReadFile        Permission = "read_file"
	PermissionWriteFile       Permission = "write_file"
	PermissionCreateFile      Permission = "create_file"
	PermissionDeleteFile      Permission = "delete_file"
	PermissionExecuteFile     Permission = "execute_file"
	PermissionNetworkAccess   Permission = "network_access"
	PermissionSystemCall      Permission = "system_call"
	PermissionProcessCreation Permission = "process_creation"
)

// Default resource ceilings applied by DefaultConfig.
const (
	DefaultMaxMemoryUsage = 512 << 20 // 512 MiB
	DefaultMaxCPUTime     = 60 * time.Second
)

// Config declares the policy and resource envelope for a sandbox.
//
// Path checks are default-deny: DeniedPaths is consulted first and a
// match always wins; otherwise the path must fall under an AllowedPaths
// prefix. Network checks require EnableNetworkAccess and a domain
// suffix-matching AllowedNetworkDomains.
type Config struct {
	// AllowedPaths are path prefixes the sandbox may touch.
	AllowedPaths []string `yaml:"allowed_paths,omitempty"`

	// DeniedPaths are path prefixes that are always rejected, even when
	// an AllowedPaths entry also matches.
	DeniedPaths []string `yaml:"denied_paths,omitempty"`

	// AllowedExecutables lists the exact executable paths
	// ExecuteInSandbox may spawn.
	AllowedExecutables []string `yaml:"allowed_executables,omitempty"`

	// AllowedNetworkDomains are domain suffixes reachable when network
	// access is enabled ("example.com" admits "api.example.com").
	AllowedNetworkDomains []string `yaml:"allowed_network_domains,omitempty"`

	// Permissions is the granted category set.
	Permissions []Permission `yaml:"permissions,omitempty"`

	EnableNetworkAccess bool `yaml:"enable_network_access,omitempty"`
	EnableSystemCalls   bool `yaml:"enable_system_calls,omitempty"`

	// EnableProcessCreation is accepted for config compatibility but is
	// not enforced; process count is bounded by MaxProcesses instead.
	EnableProcessCreation bool `yaml:"enable_process_creation,omitempty"`

	// MaxMemoryUsage is the memory ceiling in bytes. Must be positive.
	MaxMemoryUsage int64 `yaml:"max_memory_usage,omitempty"`

	// MaxCPUTime is the accumulated CPU time budget. Must be positive.
	// Serialized as a Go duration string ("30s", "2m").
	MaxCPUTime time.Duration `yaml:"-"`

	// CPUPercent optionally caps the sandbox's CPU rate (1–100).
	// Zero means no rate cap; the MaxCPUTime budget still applies.
	CPUPercent uint32 `yaml:"cpu_percent,omitempty"`

	// MaxProcesses optionally caps concurrently active processes.
	// Zero means no cap.
	MaxProcesses uint32 `yaml:"max_processes,omitempty"`

	// EnableResourceUsageCache retains this sandbox's final usage
	// snapshot after destruction even when the manager-wide cache flag
	// is off.
	EnableResourceUsageCache bool `yaml:"enable_resource_usage_cache,omitempty"`
}

// DefaultConfig returns a deny-everything configuration with the
// default resource ceilings.
func DefaultConfig() Config {
	return Config{
		MaxMemoryUsage: DefaultMaxMemoryUsage,
		MaxCPUTime:     DefaultMaxCPUTime,
	}
}

// HasPermission reports whether the category is granted.
func (c *Config) HasPermission(p Permission) bool {
	for _, granted := range c.Permissions {
		if granted == p {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (c *Config) Clone() Config {
	clone := *c
	clone.AllowedPaths = append([]string(nil), c.AllowedPaths...)
	clone.DeniedPaths = append([]string(nil), c.DeniedPaths...)
	clone.AllowedExecutables = append([]string(nil), c.AllowedExecutables...)
	clone.AllowedNetworkDomains = append([]string(nil), c.AllowedNetworkDomains...)
	clone.Permissions = append([]Permission(nil), c.Permissions...)
	return clone
}

// LoadConfig reads a Config from a YAML file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig parses a YAML Config document. Missing resource ceilings
// fall back to the defaults so a file can declare policy only. The CPU
// time budget uses Go duration syntax ("30s", "2m").
func ParseConfig(data []byte) (Config, error) {
	config := DefaultConfig()
	doc := struct {
		Config     `yaml:",inline"`
		MaxCPUTime string `yaml:"max_cpu_time,omitempty"`
	}{Config: config}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	config = doc.Config
	if doc.MaxCPUTime != "" {
		parsed, err := time.ParseDuration(doc.MaxCPUTime)
		if err != nil {
			return Config{}, fmt.Errorf("failed to parse max_cpu_time: %w", err)
		}
		config.MaxCPUTime = parsed
	}
	return config, nil
}

// MarshalYAMLDocument renders the config back to YAML with the CPU time
// budget in duration syntax.
func (c *Config) MarshalYAMLDocument() ([]byte, error) {
	doc := struct {
		Config     `yaml:",inline"`
		MaxCPUTime string `yaml:"max_cpu_time,omitempty"`
	}{Config: c.Clone(), MaxCPUTime: c.MaxCPUTime.String()}
	out, err := yaml.Marshal(&doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return out, nil
}
