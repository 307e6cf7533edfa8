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

// Command mttctl is a small operator CLI for introspecting and
// validating an MTT deployment: checking a configuration file before
// it's handed to a long-running process, and printing the live stats a
// running engine exposes.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(&configCheckCmd{}, "")
	subcommands.Register(&inspectCmd{}, "")

	flag.Parse()
	logrus.SetLevel(logrus.InfoLevel)
	os.Exit(int(subcommands.Execute(context.Background())))
}
