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

// Package branch manages a story's named branches, their parent/fork
// relationships, and the active-branch pointer. It implements
// fragment.BranchChain so the fragment store can resolve ancestry without
// importing this package.
package branch

import (
	"os"
	"sync"
	"time"

	"github.com/inkloom/inkloom-core/pkg/coreerr"
	"github.com/inkloom/inkloom-core/pkg/idgen"
	"github.com/inkloom/inkloom-core/pkg/storylayout"
)

// Branch is one named content overlay within a story.
type Branch struct {
	ID             string    `json:"id"`
	ParentID       string    `json:"parentId,omitempty"`
	Name           string    `json:"name"`
	ForkAfterIndex int       `json:"forkAfterIndex"`
	CreatedAt      time.Time `json:"createdAt"`
}

// registry is the persisted per-story state.
type registry struct {
	Branches       []Branch `json:"branches"`
	ActiveBranchID string   `json:"activeBranchId"`
}

// ChainForker is implemented by the prose chain package: a newly forked
// branch inherits the parent's chain truncated at forkAfterIndex+1.
type ChainForker interface {
	ForkChain(storyID, parentBranchID, childBranchID string, forkAfterIndex int) error
}

// Manager owns branch lifecycle for every story rooted at dataDir.
type Manager struct {
	dataDir string
	forker  ChainForker

	mu sync.Mutex
}

// New creates a Manager. forker may be nil for tests that don't exercise
// prose-chain forking.
func New(dataDir string, forker ChainForker) *Manager {
	return &Manager{dataDir: dataDir, forker: forker}
}

const rootBranchID = "main"

func (m *Manager) load(storyID string) (*registry, error) {
	path := storylayout.BranchesPath(m.dataDir, storyID)
	var reg registry
	if err := storylayout.ReadJSON(path, &reg); err != nil {
		if !os.IsNotExist(err) {
			return nil, coreerr.Wrap("branch.load", coreerr.Internal, err, "read branch registry")
		}
		reg = registry{
			Branches:       []Branch{{ID: rootBranchID, Name: "main", CreatedAt: time.Now()}},
			ActiveBranchID: rootBranchID,
		}
		if err := m.save(storyID, &reg); err != nil {
			return nil, err
		}
	}
	return &reg, nil
}

func (m *Manager) save(storyID string, reg *registry) error {
	path := storylayout.BranchesPath(m.dataDir, storyID)
	if err := storylayout.WriteJSONAtomic(path, reg); err != nil {
		return coreerr.Wrap("branch.save", coreerr.Internal, err, "write branch registry")
	}
	return nil
}

func (reg *registry) find(id string) *Branch {
	for i := range reg.Branches {
		if reg.Branches[i].ID == id {
			return &reg.Branches[i]
		}
	}
	return nil
}

// ListBranches returns every branch registered for storyID.
func (m *Manager) ListBranches(storyID string) ([]Branch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reg, err := m.load(storyID)
	if err != nil {
		return nil, err
	}
	return append([]Branch{}, reg.Branches...), nil
}

// CreateBranch forks a new branch from parentID at forkAfterIndex, and
// copies the parent's prose chain truncated at forkAfterIndex+1. Fragments
// are not copied; they resolve through ancestry until first mutation.
func (m *Manager) CreateBranch(storyID, name, parentID string, forkAfterIndex int) (*Branch, error) {
	const op = "branch.CreateBranch"
	m.mu.Lock()
	defer m.mu.Unlock()

	reg, err := m.load(storyID)
	if err != nil {
		return nil, err
	}
	if parentID != "" && reg.find(parentID) == nil {
		return nil, coreerr.New(op, coreerr.NotFound, "parent branch %s not found", parentID)
	}

	b := Branch{
		ID:             idgen.BranchID(),
		ParentID:       parentID,
		Name:           name,
		ForkAfterIndex: forkAfterIndex,
		CreatedAt:      time.Now(),
	}
	reg.Branches = append(reg.Branches, b)
	if err := m.save(storyID, reg); err != nil {
		return nil, err
	}

	if parentID != "" && m.forker != nil {
		if err := m.forker.ForkChain(storyID, parentID, b.ID, forkAfterIndex); err != nil {
			return nil, coreerr.Wrap(op, coreerr.Internal, err, "fork prose chain for branch %s", b.ID)
		}
	}
	return &b, nil
}

// SwitchActive sets storyID's active branch to id.
func (m *Manager) SwitchActive(storyID, id string) error {
	const op = "branch.SwitchActive"
	m.mu.Lock()
	defer m.mu.Unlock()

	reg, err := m.load(storyID)
	if err != nil {
		return err
	}
	if reg.find(id) == nil {
		return coreerr.New(op, coreerr.NotFound, "branch %s not found", id)
	}
	reg.ActiveBranchID = id
	return m.save(storyID, reg)
}

// DeleteBranch removes a branch's registry entry and its content root. The
// active branch cannot be deleted.
func (m *Manager) DeleteBranch(storyID, id string) error {
	const op = "branch.DeleteBranch"
	m.mu.Lock()
	defer m.mu.Unlock()

	reg, err := m.load(storyID)
	if err != nil {
		return err
	}
	if reg.ActiveBranchID == id {
		return coreerr.New(op, coreerr.Conflict, "cannot delete the active branch")
	}
	if reg.find(id) == nil {
		return coreerr.New(op, coreerr.NotFound, "branch %s not found", id)
	}

	kept := make([]Branch, 0, len(reg.Branches))
	for _, b := range reg.Branches {
		if b.ID != id {
			kept = append(kept, b)
		}
	}
	reg.Branches = kept
	if err := m.save(storyID, reg); err != nil {
		return err
	}

	if err := os.RemoveAll(storylayout.ContentDir(m.dataDir, storyID, id)); err != nil {
		return coreerr.Wrap(op, coreerr.Internal, err, "remove content root for branch %s", id)
	}
	return nil
}

// ContentRootFor returns the directory of a branch's overlay.
func (m *Manager) ContentRootFor(storyID, branchID string) string {
	return storylayout.ContentDir(m.dataDir, storyID, branchID)
}

// ActiveBranchID implements fragment.BranchChain.
func (m *Manager) ActiveBranchID(storyID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reg, err := m.load(storyID)
	if err != nil {
		return "", err
	}
	return reg.ActiveBranchID, nil
}

// Chain implements fragment.BranchChain: leaf-first ancestry walk,
// [branchID, parent, grandparent, ..., root].
func (m *Manager) Chain(storyID, branchID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reg, err := m.load(storyID)
	if err != nil {
		return nil, err
	}

	var out []string
	seen := map[string]bool{}
	cur := branchID
	for cur != "" {
		if seen[cur] {
			break // defend against a corrupt cyclic registry
		}
		seen[cur] = true
		out = append(out, cur)
		b := reg.find(cur)
		if b == nil {
			break
		}
		cur = b.ParentID
	}
	return out, nil
}
