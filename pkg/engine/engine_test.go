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

package engine

import (
	"testing"
	"unsafe"

	"github.com/memkind-go/mtt/pkg/config"
)

func allocFreeRoundTrip(t *testing.T, e *Engine) {
	t.Helper()
	ptr, err := e.Handle.Malloc(128)
	if err != nil {
		t.Fatalf("Malloc: %v", err)
	}
	*(*byte)(unsafe.Pointer(ptr)) = 0x42
	if got := *(*byte)(unsafe.Pointer(ptr)); got != 0x42 {
		t.Fatalf("write/read through handle failed")
	}
	if err := e.Handle.Free(ptr); err != nil {
		t.Fatalf("Free: %v", err)
	}
}

func TestBuildDataMovement(t *testing.T) {
	cfg := config.Default()
	e, err := Build(cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer e.Close()
	allocFreeRoundTrip(t, e)
}

func TestBuildStaticRatio(t *testing.T) {
	cfg := config.Default()
	cfg.Policy = "static_ratio"
	cfg.StaticRatio.NearFraction = 0.5
	e, err := Build(cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer e.Close()
	allocFreeRoundTrip(t, e)
}

func TestBuildDynamicThreshold(t *testing.T) {
	cfg := config.Default()
	cfg.Policy = "dynamic_threshold"
	cfg.DynamicThreshold.NearCapacityBytes = 1 << 20
	cfg.DynamicThreshold.BaseThresholdBytes = 4096
	e, err := Build(cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer e.Close()
	allocFreeRoundTrip(t, e)
}

func TestBuildRejectsBadPolicy(t *testing.T) {
	cfg := config.Default()
	cfg.Policy = "not_a_policy"
	if _, err := Build(cfg); err == nil {
		t.Fatalf("Build: want error for unrecognized policy")
	}
}
