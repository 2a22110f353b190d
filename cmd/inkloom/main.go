// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command inkloom is a local smoke-testing CLI for the write-path engine.
// It is emphatically not the HTTP API: there is no server, no real LLM
// provider, and no concurrent callers. It wires a file-backed fragment
// store against DATA_DIR and drives one call at a time through the same
// generation pipeline and librarian scheduler the HTTP layer would use,
// against a scripted mock provider, so the on-disk shape of a story can be
// inspected by hand.
//
// Usage:
//
//	inkloom generate "a storm rolls in over the harbor"
//	inkloom librarian-run --story story-abc123
//	inkloom branch list --story story-abc123
package main

import (
	"fmt"

	"github.com/alecthomas/kong"
)

// CLI is the top-level command set.
type CLI struct {
	DataDir string `help:"Root data directory for on-disk story storage." type:"path" default:"./data" env:"DATA_DIR"`
	Story   string `short:"s" help:"Story id to operate on. Generate creates a new story when omitted; other commands require it."`

	Generate     GenerateCmd     `cmd:"" help:"Run one generate/regenerate/refine call against the scripted mock provider and print the result."`
	LibrarianRun LibrarianRunCmd `cmd:"" name:"librarian-run" help:"Run one librarian analysis pass immediately, bypassing the debounce window."`
	Branch       BranchCmd       `cmd:"" help:"Inspect or mutate a story's branches."`
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("inkloom"),
		kong.Description("inkloom-core dev CLI - local smoke-testing only, not the HTTP API."),
		kong.UsageOnError(),
	)
	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}

func requireStory(cli *CLI) (string, error) {
	if cli.Story == "" {
		return "", fmt.Errorf("--story is required for this command")
	}
	return cli.Story, nil
}
