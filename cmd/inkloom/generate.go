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

import (
	"context"
	"fmt"

	"github.com/inkloom/inkloom-core/pkg/generation"
)

// GenerateCmd drives one Pipeline.Generate call to completion and prints
// the streamed output.
type GenerateCmd struct {
	Input      string `arg:"" help:"Prompt text sent to the scripted mock provider."`
	Mode       string `help:"generate, regenerate, or refine." default:"generate" enum:"generate,regenerate,refine"`
	FragmentID string `name:"fragment-id" help:"Source fragment id. Required for regenerate and refine."`
	Branch     string `default:"main" help:"Branch id to generate on."`
	Save       bool   `default:"true" negatable:"" help:"Persist the result (disable to just print the stream)."`
}

func (c *GenerateCmd) Run(cli *CLI) error {
	a := newApp(cli.DataDir)
	storyID, err := a.resolveStory(cli.Story)
	if err != nil {
		return err
	}

	req := generation.Request{
		StoryID:    storyID,
		BranchID:   c.Branch,
		Input:      c.Input,
		Mode:       generation.Mode(c.Mode),
		FragmentID: c.FragmentID,
		SaveResult: c.Save,
	}

	ctx := context.Background()
	result, err := a.Pipeline.Generate(ctx, req)
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}

	var text string
	for ev := range result.Events {
		text += ev.Text
	}
	<-result.Done

	fmt.Printf("story:   %s\n", storyID)
	fmt.Printf("branch:  %s\n", c.Branch)
	fmt.Printf("mode:    %s\n", c.Mode)
	fmt.Printf("output:  %s\n", text)
	if c.Save {
		fmt.Println("saved:   yes (see DATA_DIR/stories/<id>/content/<branch>/fragments for the new prose fragment)")
	} else {
		fmt.Println("saved:   no (--no-save)")
	}
	return nil
}
