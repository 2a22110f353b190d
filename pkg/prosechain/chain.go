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

// Package prosechain maintains the ordered sections x variations structure
// that makes "regenerate as an alternate take" coherent, persisted per
// branch.
package prosechain

import (
	"os"

	"github.com/inkloom/inkloom-core/pkg/coreerr"
	"github.com/inkloom/inkloom-core/pkg/idgen"
	"github.com/inkloom/inkloom-core/pkg/storylayout"
)

// FragmentLookup resolves a fragment's closed-set type, so AddSection can
// enforce that only prose or marker fragments ever occupy a chain section
// without this package importing pkg/fragment directly.
type FragmentLookup interface {
	Type(storyID, id string) (idgen.FragmentType, error)
}

// Section is one position in the chain: an ordered set of variation ids
// with one marked active. A marker fragment occupies its own section with
// exactly one variation and is never re-generated.
type Section struct {
	Variations []string `json:"variations"`
	Active     string   `json:"active"`
}

// Chain is the persisted per-branch prose chain state.
type Chain struct {
	Sections []Section `json:"sections"`
}

// Store loads and persists Chain values.
type Store struct {
	dataDir string

	// Fragments resolves fragment types for AddSection's prose|marker check.
	// Set by the caller after construction (pkg/fragment isn't available
	// yet at New time, see FragmentLookup).
	Fragments FragmentLookup
}

// New creates a prose-chain Store rooted at dataDir.
func New(dataDir string) *Store {
	return &Store{dataDir: dataDir}
}

func (s *Store) path(storyID, branchID string) string {
	return storylayout.ProseChainPath(s.dataDir, storyID, branchID)
}

func (s *Store) load(storyID, branchID string) (*Chain, error) {
	var c Chain
	if err := storylayout.ReadJSON(s.path(storyID, branchID), &c); err != nil {
		if os.IsNotExist(err) {
			return &Chain{Sections: []Section{}}, nil
		}
		return nil, coreerr.Wrap("prosechain.load", coreerr.Internal, err, "read prose chain")
	}
	if c.Sections == nil {
		c.Sections = []Section{}
	}
	return &c, nil
}

func (s *Store) save(storyID, branchID string, c *Chain) error {
	if err := storylayout.WriteJSONAtomic(s.path(storyID, branchID), c); err != nil {
		return coreerr.Wrap("prosechain.save", coreerr.Internal, err, "write prose chain")
	}
	return nil
}

// Get returns the prose chain for a branch.
func (s *Store) Get(storyID, branchID string) (*Chain, error) {
	return s.load(storyID, branchID)
}

// AddSection appends a new single-variation section with id active. Fails
// if id is not a prose or marker fragment.
func (s *Store) AddSection(storyID, branchID, id string) error {
	const op = "prosechain.AddSection"
	if s.Fragments == nil {
		return coreerr.New(op, coreerr.Internal, "no FragmentLookup configured")
	}
	typ, err := s.Fragments.Type(storyID, id)
	if err != nil {
		return err
	}
	if typ != idgen.TypeProse && typ != idgen.TypeMarker {
		return coreerr.New(op, coreerr.InvalidArgument, "fragment %s has type %s, want prose or marker", id, typ)
	}

	c, err := s.load(storyID, branchID)
	if err != nil {
		return err
	}
	c.Sections = append(c.Sections, Section{Variations: []string{id}, Active: id})
	return s.save(storyID, branchID, c)
}

// AddVariation appends id to sectionIndex's variation list and makes it
// active.
func (s *Store) AddVariation(storyID, branchID string, sectionIndex int, id string) error {
	const op = "prosechain.AddVariation"
	c, err := s.load(storyID, branchID)
	if err != nil {
		return err
	}
	if sectionIndex < 0 || sectionIndex >= len(c.Sections) {
		return coreerr.New(op, coreerr.InvalidArgument, "section index %d out of range", sectionIndex)
	}
	sec := &c.Sections[sectionIndex]
	sec.Variations = append(sec.Variations, id)
	sec.Active = id
	return s.save(storyID, branchID, c)
}

// SwitchActive sets sectionIndex's active id. id must already be one of
// that section's variations, else InvalidVariation (modeled as
// InvalidArgument).
func (s *Store) SwitchActive(storyID, branchID string, sectionIndex int, id string) error {
	const op = "prosechain.SwitchActive"
	c, err := s.load(storyID, branchID)
	if err != nil {
		return err
	}
	if sectionIndex < 0 || sectionIndex >= len(c.Sections) {
		return coreerr.New(op, coreerr.InvalidArgument, "section index %d out of range", sectionIndex)
	}
	sec := &c.Sections[sectionIndex]
	found := false
	for _, v := range sec.Variations {
		if v == id {
			found = true
			break
		}
	}
	if !found {
		return coreerr.New(op, coreerr.InvalidArgument, "invalid variation: %s is not in section %d", id, sectionIndex)
	}
	sec.Active = id
	return s.save(storyID, branchID, c)
}

// Reorder permutes sections according to order, a permutation of [0..n).
func (s *Store) Reorder(storyID, branchID string, order []int) error {
	const op = "prosechain.Reorder"
	c, err := s.load(storyID, branchID)
	if err != nil {
		return err
	}
	if len(order) != len(c.Sections) {
		return coreerr.New(op, coreerr.InvalidArgument, "order length %d does not match section count %d", len(order), len(c.Sections))
	}
	seen := make([]bool, len(order))
	next := make([]Section, len(c.Sections))
	for newIdx, oldIdx := range order {
		if oldIdx < 0 || oldIdx >= len(c.Sections) || seen[oldIdx] {
			return coreerr.New(op, coreerr.InvalidArgument, "order is not a valid permutation")
		}
		seen[oldIdx] = true
		next[newIdx] = c.Sections[oldIdx]
	}
	c.Sections = next
	return s.save(storyID, branchID, c)
}

// RemoveSection removes sectionIndex and returns the removed variation ids
// for the caller to archive. Contiguous indices shift down.
func (s *Store) RemoveSection(storyID, branchID string, sectionIndex int) ([]string, error) {
	const op = "prosechain.RemoveSection"
	c, err := s.load(storyID, branchID)
	if err != nil {
		return nil, err
	}
	if sectionIndex < 0 || sectionIndex >= len(c.Sections) {
		return nil, coreerr.New(op, coreerr.InvalidArgument, "section index %d out of range", sectionIndex)
	}
	removed := append([]string{}, c.Sections[sectionIndex].Variations...)
	c.Sections = append(c.Sections[:sectionIndex], c.Sections[sectionIndex+1:]...)
	if err := s.save(storyID, branchID, c); err != nil {
		return nil, err
	}
	return removed, nil
}

// FindSectionIndex returns the first section index containing id, or -1.
func (s *Store) FindSectionIndex(storyID, branchID, id string) (int, error) {
	c, err := s.load(storyID, branchID)
	if err != nil {
		return -1, err
	}
	for i, sec := range c.Sections {
		for _, v := range sec.Variations {
			if v == id {
				return i, nil
			}
		}
	}
	return -1, nil
}

// ForkChain implements branch.ChainForker: copies the parent's chain
// truncated at forkAfterIndex+1 onto childBranchID.
func (s *Store) ForkChain(storyID, parentBranchID, childBranchID string, forkAfterIndex int) error {
	parent, err := s.load(storyID, parentBranchID)
	if err != nil {
		return err
	}
	cut := forkAfterIndex + 1
	if cut < 0 {
		cut = 0
	}
	if cut > len(parent.Sections) {
		cut = len(parent.Sections)
	}
	child := &Chain{Sections: append([]Section{}, parent.Sections[:cut]...)}
	return s.save(storyID, childBranchID, child)
}
