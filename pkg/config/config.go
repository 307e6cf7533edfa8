// Copyright 2026 The MTT Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config parses and validates the TOML configuration surface
// that selects a tier policy and its parameters.
package config

import (
	"os"

	"github.com/BurntSushi/toml"

	"github.com/memkind-go/mtt/pkg/mkerr"
)

// Config mirrors the on-disk TOML configuration.
type Config struct {
	Policy string `toml:"policy"` // "static_ratio", "dynamic_threshold", or "data_movement"

	StaticRatio struct {
		NearFraction float64 `toml:"near_fraction"`
	} `toml:"static_ratio"`

	DynamicThreshold struct {
		NearCapacityBytes uint64 `toml:"near_capacity_bytes"`
		BaseThresholdBytes uint64 `toml:"base_threshold_bytes"`
	} `toml:"dynamic_threshold"`

	DataMovement struct {
		LowLimitBytes  uint64 `toml:"low_limit_bytes"`
		SoftLimitBytes uint64 `toml:"soft_limit_bytes"`
		HardLimitBytes uint64 `toml:"hard_limit_bytes"`
		NearNUMANode   int    `toml:"near_numa_node"`
		FarNUMANode    int    `toml:"far_numa_node"`
	} `toml:"data_movement"`

	TracedPageSizeBytes uint64 `toml:"traced_page_size_bytes"`
	BigaryPageSizeBytes uint64 `toml:"bigary_page_size_bytes"`
	HogMemory           bool   `toml:"hog_memory"`
}

// Default returns a Config with the engine's built-in defaults; the
// bigary page size matches pkg/bigary's PageSize constant.
func Default() Config {
	var c Config
	c.Policy = "data_movement"
	c.TracedPageSizeBytes = 4096
	c.BigaryPageSizeBytes = 2 << 20
	c.DataMovement.LowLimitBytes = 64 << 20
	c.DataMovement.SoftLimitBytes = 128 << 20
	c.DataMovement.HardLimitBytes = 192 << 20
	return c
}

// Load reads and validates a Config from a TOML file at path.
func Load(path string) (Config, error) {
	c := Default()
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return Config{}, mkerr.Wrap(mkerr.InvalidArgument, err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// LoadFromReader is Load for callers that already have the TOML content
// in hand (e.g. from an embedded default or a test fixture).
func LoadFromReader(data []byte) (Config, error) {
	c := Default()
	if err := toml.Unmarshal(data, &c); err != nil {
		return Config{}, mkerr.Wrap(mkerr.InvalidArgument, err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks the invariants the engine depends on: monotonic
// data-movement limits aligned to the traced page size, a non-zero near
// fraction for static_ratio, and a recognized policy name.
func (c Config) Validate() error {
	switch c.Policy {
	case "static_ratio":
		if c.StaticRatio.NearFraction <= 0 || c.StaticRatio.NearFraction > 1 {
			return mkerr.New(mkerr.InvalidArgument, "config: static_ratio.near_fraction must be in (0, 1]")
		}
	case "dynamic_threshold":
		if c.DynamicThreshold.NearCapacityBytes == 0 {
			return mkerr.New(mkerr.InvalidArgument, "config: dynamic_threshold.near_capacity_bytes must be > 0")
		}
	case "data_movement":
		dm := c.DataMovement
		if dm.LowLimitBytes > dm.SoftLimitBytes || dm.SoftLimitBytes > dm.HardLimitBytes {
			return mkerr.New(mkerr.InvalidArgument, "config: data_movement limits must satisfy low <= soft <= hard")
		}
		if c.TracedPageSizeBytes == 0 {
			return mkerr.New(mkerr.InvalidArgument, "config: traced_page_size_bytes must be > 0")
		}
		for name, v := range map[string]uint64{"low_limit_bytes": dm.LowLimitBytes, "soft_limit_bytes": dm.SoftLimitBytes, "hard_limit_bytes": dm.HardLimitBytes} {
			if v%c.TracedPageSizeBytes != 0 {
				return mkerr.New(mkerr.InvalidArgument, "config: data_movement.%s is not aligned to traced_page_size_bytes", name)
			}
		}
	default:
		return mkerr.New(mkerr.InvalidArgument, "config: unrecognized policy %q", c.Policy)
	}
	if c.TracedPageSizeBytes&(c.TracedPageSizeBytes-1) != 0 {
		return mkerr.New(mkerr.InvalidArgument, "config: traced_page_size_bytes must be a power of two")
	}
	return nil
}

// FileExists is a tiny helper used by mttctl's config-check subcommand
// to give a clearer error than toml.DecodeFile's own "no such file".
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
