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

// Package contextbuilder selects and orders fragments into the message
// list sent with each generation call, in two phases: state build then
// message assemble.
package contextbuilder

import (
	"sort"
	"strings"

	"github.com/inkloom/inkloom-core/pkg/fragment"
	"github.com/inkloom/inkloom-core/pkg/idgen"
	"github.com/inkloom/inkloom-core/pkg/prosechain"
	"github.com/inkloom/inkloom-core/pkg/story"
)

// Default shortlist sizes per type, used when a story doesn't override them.
const (
	defaultCharacterShortlist = 6
	defaultGuidelineShortlist = 4
	defaultKnowledgeShortlist = 8
)

// Embedder optionally scores a candidate fragment's similarity to the
// caller's input. A nil Embedder preserves the tag/ref/recency-only
// ranking exactly.
type Embedder interface {
	Similarity(input string, candidate *fragment.Fragment) (float64, error)
}

// State is the output of buildContextState: a fully resolved, deterministic
// snapshot ready for message assembly.
type State struct {
	Story             *story.Meta
	Input             string
	StickyByPlacement map[fragment.Placement][]*fragment.Fragment
	Characters        []*fragment.Fragment
	Guidelines        []*fragment.Fragment
	Knowledge         []*fragment.Fragment
	ProseOrdered      []*fragment.Fragment
	ProseSummarized   bool
	ExtraTools        []string
}

// Builder assembles State snapshots from the fragment store, prose chain,
// and story store.
type Builder struct {
	Fragments  *fragment.Store
	ProseChain *prosechain.Store
	Stories    *story.Store
	Embedder   Embedder
}

// BuildOptions parameterizes buildContextState.
type BuildOptions struct {
	ExcludeFragmentID string
}

// Build implements phase 1: buildContextState(storyId, input, opts).
func (b *Builder) Build(storyID, branchID, input string, opts BuildOptions) (*State, error) {
	meta, err := b.Stories.Get(storyID)
	if err != nil {
		return nil, err
	}

	characters, err := b.Fragments.List(storyID, idgen.TypeCharacter, fragment.ListOptions{})
	if err != nil {
		return nil, err
	}
	guidelines, err := b.Fragments.List(storyID, idgen.TypeGuideline, fragment.ListOptions{})
	if err != nil {
		return nil, err
	}
	knowledge, err := b.Fragments.List(storyID, idgen.TypeKnowledge, fragment.ListOptions{})
	if err != nil {
		return nil, err
	}

	characters = excludeID(characters, opts.ExcludeFragmentID)
	guidelines = excludeID(guidelines, opts.ExcludeFragmentID)
	knowledge = excludeID(knowledge, opts.ExcludeFragmentID)

	chain, err := b.ProseChain.Get(storyID, branchID)
	if err != nil {
		return nil, err
	}
	proseOrdered, err := b.orderedActiveProse(storyID, chain)
	if err != nil {
		return nil, err
	}
	proseOrdered = excludeID(proseOrdered, opts.ExcludeFragmentID)

	recentRefs := b.refsFromRecentSections(proseOrdered, meta.Settings.SummarizationThreshold)

	state := &State{
		Story: meta,
		Input: input,
		StickyByPlacement: map[fragment.Placement][]*fragment.Fragment{
			fragment.PlacementSystem: {},
			fragment.PlacementUser:   {},
		},
	}

	state.Characters = b.selectByType(characters, recentRefs, input, defaultCharacterShortlist, state.StickyByPlacement)
	state.Guidelines = b.selectByType(guidelines, recentRefs, input, defaultGuidelineShortlist, state.StickyByPlacement)
	state.Knowledge = b.selectByType(knowledge, recentRefs, input, defaultKnowledgeShortlist, state.StickyByPlacement)

	threshold := meta.Settings.SummarizationThreshold
	if len(chain.Sections) > threshold {
		state.ProseSummarized = true
		state.ProseOrdered = proseOrdered[len(proseOrdered)-threshold:]
	} else {
		state.ProseOrdered = proseOrdered
	}

	return state, nil
}

func excludeID(list []*fragment.Fragment, id string) []*fragment.Fragment {
	if id == "" {
		return list
	}
	out := make([]*fragment.Fragment, 0, len(list))
	for _, f := range list {
		if f.ID != id {
			out = append(out, f)
		}
	}
	return out
}

func (b *Builder) orderedActiveProse(storyID string, chain *prosechain.Chain) ([]*fragment.Fragment, error) {
	out := make([]*fragment.Fragment, 0, len(chain.Sections))
	for _, sec := range chain.Sections {
		if sec.Active == "" {
			continue
		}
		f, err := b.Fragments.Get(storyID, sec.Active)
		if err != nil {
			continue // an inconsistent chain entry should not fail the whole build
		}
		out = append(out, f)
	}
	return out, nil
}

// refsFromRecentSections collects every ref mentioned by a prose fragment
// within the last `threshold` sections, for the shortlist's ref-popularity
// ranking factor.
func (b *Builder) refsFromRecentSections(proseOrdered []*fragment.Fragment, threshold int) map[string]bool {
	start := 0
	if len(proseOrdered) > threshold {
		start = len(proseOrdered) - threshold
	}
	refs := map[string]bool{}
	for _, f := range proseOrdered[start:] {
		for _, r := range f.Refs {
			refs[r] = true
		}
	}
	return refs
}

// selectByType partitions candidates into sticky and shortlist-ranked,
// returning sticky ∪ top-K shortlist, deduplicated by id. Sticky fragments
// are also appended to stickyByPlacement for system/user message assembly.
func (b *Builder) selectByType(
	candidates []*fragment.Fragment,
	recentRefs map[string]bool,
	input string,
	topK int,
	stickyByPlacement map[fragment.Placement][]*fragment.Fragment,
) []*fragment.Fragment {
	var sticky, rest []*fragment.Fragment
	for _, f := range candidates {
		if f.Archived {
			continue
		}
		if f.Sticky {
			sticky = append(sticky, f)
			placement := f.Placement
			if placement == "" {
				placement = fragment.PlacementUser
			}
			stickyByPlacement[placement] = append(stickyByPlacement[placement], f)
			continue
		}
		rest = append(rest, f)
	}

	inputTokens := tokenize(input)
	similarity := map[string]float64{}
	if b.Embedder != nil {
		for _, f := range rest {
			if score, err := b.Embedder.Similarity(input, f); err == nil {
				similarity[f.ID] = score
			}
		}
	}
	sort.SliceStable(rest, func(i, j int) bool {
		return rankLess(rest[i], rest[j], recentRefs, inputTokens, similarity)
	})
	if len(rest) > topK {
		rest = rest[:topK]
	}

	seen := map[string]bool{}
	out := make([]*fragment.Fragment, 0, len(sticky)+len(rest))
	for _, f := range sticky {
		if !seen[f.ID] {
			seen[f.ID] = true
			out = append(out, f)
		}
	}
	for _, f := range rest {
		if !seen[f.ID] {
			seen[f.ID] = true
			out = append(out, f)
		}
	}
	return out
}

// rankLess orders candidates by the documented strict tie-break: ref
// popularity in recent prose, then tag overlap with the input, then (only
// when a similarity map is non-empty, i.e. an Embedder is configured)
// embedding similarity to the input, then recency. This is a
// secondary-sort tie-break, not a weighted score; an empty similarity map
// leaves the three-factor ordering exactly as without an Embedder.
func rankLess(a, b *fragment.Fragment, recentRefs map[string]bool, inputTokens map[string]bool, similarity map[string]float64) bool {
	aRef, bRef := recentRefs[a.ID], recentRefs[b.ID]
	if aRef != bRef {
		return aRef
	}
	aOverlap, bOverlap := tagOverlap(a.Tags, inputTokens), tagOverlap(b.Tags, inputTokens)
	if aOverlap != bOverlap {
		return aOverlap > bOverlap
	}
	if len(similarity) > 0 && similarity[a.ID] != similarity[b.ID] {
		return similarity[a.ID] > similarity[b.ID]
	}
	return a.UpdatedAt.After(b.UpdatedAt)
}

func tagOverlap(tags []string, tokens map[string]bool) int {
	n := 0
	for _, t := range tags {
		if tokens[t] {
			n++
		}
	}
	return n
}

func tokenize(input string) map[string]bool {
	out := map[string]bool{}
	for _, word := range strings.Fields(strings.ToLower(input)) {
		out[strings.Trim(word, ".,!?;:\"'()")] = true
	}
	return out
}
