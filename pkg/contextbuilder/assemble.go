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

package contextbuilder

import (
	"fmt"
	"strings"

	"github.com/inkloom/inkloom-core/pkg/fragment"
	"github.com/inkloom/inkloom-core/pkg/llm"
	"github.com/inkloom/inkloom-core/pkg/story"
)

// AssembleOptions parameterizes assembleMessages.
type AssembleOptions struct {
	ExtraTools       []llm.ToolDefinition
	BaseInstructions string
	FragmentOrder    []string // used only when ContextOrderMode == advanced
}

// Assemble implements phase 2: assembleMessages(state, opts). The order is
// fixed and documented: base instructions, system fragments, summary,
// characters, guidelines, knowledge, recent prose, available tools,
// caller input.
func Assemble(state *State, opts AssembleOptions) []llm.Message {
	var messages []llm.Message

	if opts.BaseInstructions != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: opts.BaseInstructions, SourceTag: "base-instructions"})
	}

	if systemFrags := state.StickyByPlacement[fragment.PlacementSystem]; len(systemFrags) > 0 {
		messages = append(messages, llm.Message{
			Role:      llm.RoleSystem,
			Content:   renderFragmentBlock(systemFrags),
			SourceTag: "system-fragments",
		})
	}

	if state.Story.Summary != "" {
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: state.Story.Summary, SourceTag: "summary"})
	}

	if block := orderedBlock(state.Characters, state.Story.Settings, opts.FragmentOrder); block != "" {
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: "## Characters\n" + block, SourceTag: "characters"})
	}
	if block := orderedBlock(state.Guidelines, state.Story.Settings, opts.FragmentOrder); block != "" {
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: "## Guidelines\n" + block, SourceTag: "guidelines"})
	}
	if block := orderedBlock(state.Knowledge, state.Story.Settings, opts.FragmentOrder); block != "" {
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: "## Knowledge\n" + block, SourceTag: "knowledge"})
	}

	if len(state.ProseOrdered) > 0 {
		messages = append(messages, llm.Message{
			Role:      llm.RoleUser,
			Content:   renderProse(state.ProseOrdered),
			SourceTag: "recent-prose",
		})
	}

	if len(opts.ExtraTools) > 0 {
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: renderToolsBlock(opts.ExtraTools), SourceTag: "available-tools"})
	}

	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: state.Input, SourceTag: "input"})

	return messages
}

func renderFragmentBlock(frags []*fragment.Fragment) string {
	var sb strings.Builder
	for _, f := range frags {
		fmt.Fprintf(&sb, "## %s\n%s\n", f.Name, f.Content)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// orderedBlock renders frags in default order unless the story's
// contextOrderMode is advanced, in which case fragmentOrder takes
// precedence for any mentioned ids; unmentioned fragments keep default
// trailing order.
func orderedBlock(frags []*fragment.Fragment, settings story.Settings, fragmentOrder []string) string {
	if len(frags) == 0 {
		return ""
	}
	ordered := frags
	if settings.ContextOrderMode == story.ContextOrderAdvanced && len(fragmentOrder) > 0 {
		ordered = applyExplicitOrder(frags, fragmentOrder)
	}
	return renderFragmentBlock(ordered)
}

func applyExplicitOrder(frags []*fragment.Fragment, order []string) []*fragment.Fragment {
	byID := map[string]*fragment.Fragment{}
	for _, f := range frags {
		byID[f.ID] = f
	}
	seen := map[string]bool{}
	out := make([]*fragment.Fragment, 0, len(frags))
	for _, id := range order {
		if f, ok := byID[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, f)
		}
	}
	for _, f := range frags {
		if !seen[f.ID] {
			out = append(out, f)
		}
	}
	return out
}

func renderProse(frags []*fragment.Fragment) string {
	var sb strings.Builder
	for _, f := range frags {
		sb.WriteString(f.Content)
		sb.WriteString("\n\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func renderToolsBlock(tools []llm.ToolDefinition) string {
	var sb strings.Builder
	sb.WriteString("## Available Tools\n")
	for _, t := range tools {
		fmt.Fprintf(&sb, "- %s: %s\n", t.Name, t.Description)
	}
	return strings.TrimRight(sb.String(), "\n")
}
