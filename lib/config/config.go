// Copyright (C) 2026 The prolink Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package config loads the process-global tunables of spec.md §6 from a
// YAML file. sigs.k8s.io/yaml round-trips through encoding/json, so
// fields are tagged with `json`, not `yaml`, matching the convention
// used elsewhere in this codebase for structured configuration. Durations
// are expressed in plain milliseconds, mirroring spec.md's own units
// ("MAX_AGE default 10,000 ms"), to avoid relying on encoding/json's
// no-op handling of time.Duration string forms.
package config

import (
	"fmt"
	"os"
	"time"

	"sigs.k8s.io/yaml"

	"github.com/prolinkgo/prolink/lib/dbserver"
	"github.com/prolinkgo/prolink/lib/discover"
)

// Config is the process-global tunable set of spec.md §6. Zero-valued
// fields after loading are replaced with their documented defaults by
// applyDefaults.
type Config struct {
	// MaxAgeMillis is DeviceFinder's device expiration threshold.
	MaxAgeMillis int64 `json:"maxAgeMillis"`
	// AnnouncementPort is the UDP port DeviceFinder binds.
	AnnouncementPort int `json:"announcementPort"`
	// SocketTimeoutMillis is ConnectionManager's connect/read timeout for
	// DBServer-related sockets.
	SocketTimeoutMillis int64 `json:"socketTimeoutMillis"`
	// ProbeRateLimitPerSecond bounds how fast new port probes may be
	// issued.
	ProbeRateLimitPerSecond float64 `json:"probeRateLimitPerSecond"`
	// ProbeRateBurst is the burst size for the same limiter.
	ProbeRateBurst int `json:"probeRateBurst"`
	// MaxConcurrentSessions bounds concurrent invokeWithClientSession
	// calls.
	MaxConcurrentSessions int64 `json:"maxConcurrentSessions"`
}

// Default returns the tunables at their spec.md §6 default values.
func Default() Config {
	return Config{
		MaxAgeMillis:            discover.DefaultMaxAge.Milliseconds(),
		AnnouncementPort:        discover.DefaultAnnouncementPort,
		SocketTimeoutMillis:     dbserver.DefaultSocketTimeout.Milliseconds(),
		ProbeRateLimitPerSecond: 20,
		ProbeRateBurst:          5,
		MaxConcurrentSessions:   8,
	}
}

// MaxAge is MaxAgeMillis as a time.Duration.
func (c Config) MaxAge() time.Duration {
	return time.Duration(c.MaxAgeMillis) * time.Millisecond
}

// SocketTimeout is SocketTimeoutMillis as a time.Duration.
func (c Config) SocketTimeout() time.Duration {
	return time.Duration(c.SocketTimeoutMillis) * time.Millisecond
}

// Load reads and parses a YAML config file at path, applying defaults for
// any field left unset.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("prolink/config: reading %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses YAML (or JSON, which is a YAML subset) bytes into a
// Config, applying defaults for any field left unset.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("prolink/config: parsing config: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.MaxAgeMillis <= 0 {
		c.MaxAgeMillis = d.MaxAgeMillis
	}
	if c.AnnouncementPort == 0 {
		c.AnnouncementPort = d.AnnouncementPort
	}
	if c.SocketTimeoutMillis <= 0 {
		c.SocketTimeoutMillis = d.SocketTimeoutMillis
	}
	if c.ProbeRateLimitPerSecond <= 0 {
		c.ProbeRateLimitPerSecond = d.ProbeRateLimitPerSecond
	}
	if c.ProbeRateBurst <= 0 {
		c.ProbeRateBurst = d.ProbeRateBurst
	}
	if c.MaxConcurrentSessions <= 0 {
		c.MaxConcurrentSessions = d.MaxConcurrentSessions
	}
}
