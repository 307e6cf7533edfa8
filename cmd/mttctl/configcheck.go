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
)

type configCheckCmd struct {
	path string
}

func (*configCheckCmd) Name() string     { return "config-check" }
func (*configCheckCmd) Synopsis() string { return "validate an MTT TOML configuration file" }
func (*configCheckCmd) Usage() string {
	return "config-check -config=<path>\n  Parses and validates a configuration file without starting an engine.\n"
}

func (c *configCheckCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.path, "config", "", "path to the TOML configuration file")
}

func (c *configCheckCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.path == "" {
		fmt.Println("config-check: -config is required")
		return subcommands.ExitUsageError
	}
	if !config.FileExists(c.path) {
		fmt.Printf("config-check: %s: no such file\n", c.path)
		return subcommands.ExitFailure
	}
	cfg, err := config.Load(c.path)
	if err != nil {
		fmt.Printf("config-check: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Printf("config-check: OK (policy=%s)\n", cfg.Policy)
	return subcommands.ExitSuccess
}
