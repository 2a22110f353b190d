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

package fragment

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/inkloom/inkloom-core/pkg/coreerr"
	"github.com/inkloom/inkloom-core/pkg/idgen"
	"github.com/inkloom/inkloom-core/pkg/storylayout"
)

// BranchChain is the branch-manager facet the fragment store depends on. It
// lets Store walk a branch's ancestry without importing the branch package.
type BranchChain interface {
	// ActiveBranchID returns the story's currently active branch.
	ActiveBranchID(storyID string) (string, error)

	// Chain returns branchID's ancestry, leaf first: [branchID, parent,
	// grandparent, ..., root].
	Chain(storyID, branchID string) ([]string, error)
}

// Store is the canonical fragment CRUD surface described in spec.md §4.1.
type Store struct {
	dataDir string
	chain   BranchChain
}

// New creates a Store rooted at dataDir, resolving branch ancestry through
// chain.
func New(dataDir string, chain BranchChain) *Store {
	return &Store{dataDir: dataDir, chain: chain}
}

func (s *Store) activeBranch(storyID string) (string, error) {
	b, err := s.chain.ActiveBranchID(storyID)
	if err != nil {
		return "", coreerr.Wrap("fragment.activeBranch", coreerr.Internal, err, "resolve active branch for story %s", storyID)
	}
	return b, nil
}

// Create writes fragment on the active branch's overlay. It fails with
// Conflict if the id already exists on any ancestor branch.
func (s *Store) Create(storyID string, f *Fragment) error {
	const op = "fragment.Create"
	if f.ID == "" {
		return coreerr.New(op, coreerr.InvalidArgument, "fragment id is required")
	}
	active, err := s.activeBranch(storyID)
	if err != nil {
		return err
	}

	if _, _, err := s.resolve(storyID, active, f.ID); err == nil {
		return coreerr.New(op, coreerr.Conflict, "fragment %s already exists", f.ID)
	}

	f.Normalize()
	now := time.Now()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	f.UpdatedAt = now

	path := storylayout.FragmentPath(s.dataDir, storyID, active, f.ID)
	if err := storylayout.WriteJSONAtomic(path, f); err != nil {
		return coreerr.Wrap(op, coreerr.Internal, err, "write fragment %s", f.ID)
	}
	// A create on a branch that previously tombstoned this id (e.g. it was
	// deleted then re-created with the same id) must clear the tombstone so
	// resolution finds the live file again.
	tomb := storylayout.TombstonePath(s.dataDir, storyID, active, f.ID)
	if storylayout.Exists(tomb) {
		_ = os.Remove(tomb)
	}
	return nil
}

// resolve walks branchID's ancestry leaf-first and returns the branch that
// owns id's live file, along with the loaded fragment. A tombstone on a
// branch before the owning ancestor is reached stops the walk with NotFound.
func (s *Store) resolve(storyID, branchID, id string) (string, *Fragment, error) {
	ancestry, err := s.chain.Chain(storyID, branchID)
	if err != nil {
		return "", nil, coreerr.Wrap("fragment.resolve", coreerr.Internal, err, "resolve branch chain for %s", branchID)
	}
	for _, b := range ancestry {
		tomb := storylayout.TombstonePath(s.dataDir, storyID, b, id)
		if storylayout.Exists(tomb) {
			return "", nil, coreerr.New("fragment.resolve", coreerr.NotFound, "fragment %s tombstoned on branch %s", id, b)
		}
		path := storylayout.FragmentPath(s.dataDir, storyID, b, id)
		var f Fragment
		if err := storylayout.ReadJSON(path, &f); err == nil {
			f.Normalize()
			return b, &f, nil
		} else if !os.IsNotExist(err) {
			return "", nil, coreerr.Wrap("fragment.resolve", coreerr.Internal, err, "read fragment %s on branch %s", id, b)
		}
	}
	return "", nil, coreerr.New("fragment.resolve", coreerr.NotFound, "fragment %s not found", id)
}

// Get walks the branch chain leaf to root and returns the first hit.
func (s *Store) Get(storyID, id string) (*Fragment, error) {
	active, err := s.activeBranch(storyID)
	if err != nil {
		return nil, err
	}
	_, f, err := s.resolve(storyID, active, id)
	return f, err
}

// Type returns id's fragment type, satisfying pkg/prosechain.FragmentLookup.
func (s *Store) Type(storyID, id string) (idgen.FragmentType, error) {
	f, err := s.Get(storyID, id)
	if err != nil {
		return "", err
	}
	return f.Type, nil
}

// ListOptions controls List's filtering.
type ListOptions struct {
	IncludeArchived bool
}

// List unions the active branch overlay with inherited ancestor ids (minus
// tombstoned ones), filtered by type when typeFilter is non-empty.
func (s *Store) List(storyID string, typeFilter idgen.FragmentType, opts ListOptions) ([]*Fragment, error) {
	active, err := s.activeBranch(storyID)
	if err != nil {
		return nil, err
	}
	ancestry, err := s.chain.Chain(storyID, active)
	if err != nil {
		return nil, coreerr.Wrap("fragment.List", coreerr.Internal, err, "resolve branch chain")
	}

	seen := map[string]bool{}
	tombstoned := map[string]bool{}
	var out []*Fragment

	for _, b := range ancestry {
		dir := storylayout.FragmentsDir(s.dataDir, storyID, b)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, coreerr.Wrap("fragment.List", coreerr.Internal, err, "read fragments dir for branch %s", b)
		}
		for _, e := range entries {
			name := e.Name()
			switch {
			case strings.HasSuffix(name, ".tomb"):
				id := strings.TrimSuffix(name, ".tomb")
				tombstoned[id] = true
				continue
			case strings.HasSuffix(name, ".json"):
				id := strings.TrimSuffix(name, ".json")
				if seen[id] || tombstoned[id] {
					continue
				}
				seen[id] = true

				var f Fragment
				if err := storylayout.ReadJSON(storylayout.FragmentPath(s.dataDir, storyID, b, id), &f); err != nil {
					continue
				}
				f.Normalize()

				if !opts.IncludeArchived && f.Archived {
					continue
				}
				if typeFilter != "" && f.Type != typeFilter {
					continue
				}
				out = append(out, &f)
			}
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Update writes f to the active branch's overlay verbatim (copy-up if f
// lives on an ancestor branch). Callers that need version-bump semantics
// use UpdateVersioned instead.
func (s *Store) Update(storyID string, f *Fragment) error {
	const op = "fragment.Update"
	active, err := s.activeBranch(storyID)
	if err != nil {
		return err
	}
	f.Normalize()
	f.UpdatedAt = time.Now()
	path := storylayout.FragmentPath(s.dataDir, storyID, active, f.ID)
	if err := storylayout.WriteJSONAtomic(path, f); err != nil {
		return coreerr.Wrap(op, coreerr.Internal, err, "write fragment %s", f.ID)
	}
	return nil
}

// Archive flips archived to true and touches updatedAt. The prose chain is
// not reconciled here; callers are expected to do so (spec.md §4.1).
func (s *Store) Archive(storyID, id string) error {
	return s.setArchived(storyID, id, true)
}

// Restore flips archived back to false.
func (s *Store) Restore(storyID, id string) error {
	return s.setArchived(storyID, id, false)
}

func (s *Store) setArchived(storyID, id string, archived bool) error {
	f, err := s.Get(storyID, id)
	if err != nil {
		return err
	}
	f.Archived = archived
	return s.Update(storyID, f)
}

// Delete removes the overlay file and, if id is inherited from an ancestor
// branch, writes a tombstone on the active branch. Fails with Conflict if
// the fragment is not archived.
func (s *Store) Delete(storyID, id string) error {
	const op = "fragment.Delete"
	active, err := s.activeBranch(storyID)
	if err != nil {
		return err
	}
	owner, f, err := s.resolve(storyID, active, id)
	if err != nil {
		return err
	}
	if !f.Archived {
		return coreerr.New(op, coreerr.Conflict, "fragment %s must be archived before delete", id)
	}

	if owner == active {
		path := storylayout.FragmentPath(s.dataDir, storyID, active, id)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return coreerr.Wrap(op, coreerr.Internal, err, "remove fragment %s", id)
		}
		return nil
	}

	// Inherited from an ancestor: the active branch can't mutate the
	// ancestor's file, so it records a tombstone that hides the id.
	tomb := storylayout.TombstonePath(s.dataDir, storyID, active, id)
	if err := storylayout.EnsureDir(storylayout.FragmentsDir(s.dataDir, storyID, active)); err != nil {
		return coreerr.Wrap(op, coreerr.Internal, err, "ensure fragments dir")
	}
	if err := os.WriteFile(tomb, []byte(fmt.Sprintf("%d\n", time.Now().Unix())), 0o644); err != nil {
		return coreerr.Wrap(op, coreerr.Internal, err, "write tombstone for %s", id)
	}
	return nil
}

// CopyUp materializes an inherited fragment onto the active branch's
// overlay, without changing its content. It is a no-op if the fragment
// already lives on the active branch.
func (s *Store) CopyUp(storyID, id string) (*Fragment, error) {
	active, err := s.activeBranch(storyID)
	if err != nil {
		return nil, err
	}
	owner, f, err := s.resolve(storyID, active, id)
	if err != nil {
		return nil, err
	}
	if owner == active {
		return f, nil
	}
	path := storylayout.FragmentPath(s.dataDir, storyID, active, id)
	if err := storylayout.WriteJSONAtomic(path, f); err != nil {
		return nil, coreerr.Wrap("fragment.CopyUp", coreerr.Internal, err, "copy up fragment %s", id)
	}
	return f, nil
}
