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

package main

import "fmt"

// BranchCmd groups the branch-inspection/mutation subcommands.
type BranchCmd struct {
	List   BranchListCmd   `cmd:"" help:"List a story's branches."`
	Create BranchCreateCmd `cmd:"" help:"Fork a new branch from an existing one."`
	Switch BranchSwitchCmd `cmd:"" help:"Set a story's active branch."`
}

type BranchListCmd struct{}

func (c *BranchListCmd) Run(cli *CLI) error {
	storyID, err := requireStory(cli)
	if err != nil {
		return err
	}
	a := newApp(cli.DataDir)
	branches, err := a.Branches.ListBranches(storyID)
	if err != nil {
		return fmt.Errorf("branch list: %w", err)
	}
	active, err := a.Branches.ActiveBranchID(storyID)
	if err != nil {
		return fmt.Errorf("branch list: %w", err)
	}
	for _, b := range branches {
		marker := " "
		if b.ID == active {
			marker = "*"
		}
		fmt.Printf("%s %-12s %-16s parent=%s forkAfter=%d\n", marker, b.ID, b.Name, b.ParentID, b.ForkAfterIndex)
	}
	return nil
}

type BranchCreateCmd struct {
	Name           string `arg:"" help:"Name for the new branch."`
	Parent         string `default:"main" help:"Parent branch id to fork from."`
	ForkAfterIndex int    `name:"fork-after-index" default:"-1" help:"Prose-chain index to fork after (-1 forks at the current tip)."`
}

func (c *BranchCreateCmd) Run(cli *CLI) error {
	storyID, err := requireStory(cli)
	if err != nil {
		return err
	}
	a := newApp(cli.DataDir)

	forkAfter := c.ForkAfterIndex
	if forkAfter < 0 {
		chain, err := a.ProseChain.Get(storyID, c.Parent)
		if err != nil {
			return fmt.Errorf("branch create: %w", err)
		}
		forkAfter = len(chain.Sections) - 1
	}

	b, err := a.Branches.CreateBranch(storyID, c.Name, c.Parent, forkAfter)
	if err != nil {
		return fmt.Errorf("branch create: %w", err)
	}
	fmt.Printf("created branch %s (%s), forked from %s after index %d\n", b.ID, b.Name, c.Parent, forkAfter)
	return nil
}

type BranchSwitchCmd struct {
	ID string `arg:"" help:"Branch id to make active."`
}

func (c *BranchSwitchCmd) Run(cli *CLI) error {
	storyID, err := requireStory(cli)
	if err != nil {
		return err
	}
	a := newApp(cli.DataDir)
	if err := a.Branches.SwitchActive(storyID, c.ID); err != nil {
		return fmt.Errorf("branch switch: %w", err)
	}
	fmt.Printf("active branch for %s is now %s\n", storyID, c.ID)
	return nil
}
