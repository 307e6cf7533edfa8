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

package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/memkind-go/mtt/pkg/config"
	"github.com/memkind-go/mtt/pkg/engine"
)

// inspectCmd builds an ephemeral engine from a configuration file and
// exercises one malloc/free round trip, printing what the resulting
// deployment looks like. mttctl runs out-of-process from the target
// program's LD_PRELOAD-injected allocator, so it cannot attach to a
// live instance; this subcommand instead gives an operator a way to
// sanity-check a config before rolling it out.
type inspectCmd struct {
	path string
}

func (*inspectCmd) Name() string     { return "inspect" }
func (*inspectCmd) Synopsis() string { return "build an engine from a config file and report its shape" }
func (*inspectCmd) Usage() string {
	return "inspect -config=<path>\n  Builds an engine from the given configuration and reports its policy\n  and limits, performing one allocation round trip as a smoke test.\n"
}

func (c *inspectCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.path, "config", "", "path to the TOML configuration file")
}

func (c *inspectCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg := config.Default()
	if c.path != "" {
		var err error
		cfg, err = config.Load(c.path)
		if err != nil {
			fmt.Printf("inspect: %v\n", err)
			return subcommands.ExitFailure
		}
	}

	eng, err := engine.Build(cfg)
	if err != nil {
		fmt.Printf("inspect: build: %v\n", err)
		return subcommands.ExitFailure
	}
	defer eng.Close()

	ptr, err := eng.Handle.Malloc(64)
	if err != nil {
		fmt.Printf("inspect: smoke-test malloc: %v\n", err)
		return subcommands.ExitFailure
	}
	if err := eng.Handle.Free(ptr); err != nil {
		fmt.Printf("inspect: smoke-test free: %v\n", err)
		return subcommands.ExitFailure
	}

	fmt.Printf("inspect: OK (policy=%s, traced_page=%d, bigary_page=%d)\n",
		cfg.Policy, cfg.TracedPageSizeBytes, cfg.BigaryPageSizeBytes)
	if cfg.Policy == "data_movement" {
		dm := cfg.DataMovement
		fmt.Printf("  limits: low=%d soft=%d hard=%d\n", dm.LowLimitBytes, dm.SoftLimitBytes, dm.HardLimitBytes)
	}
	return subcommands.ExitSuccess
}
