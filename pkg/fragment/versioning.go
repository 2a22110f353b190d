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
	"strconv"
	"strings"
	"time"

	"github.com/inkloom/inkloom-core/pkg/coreerr"
)

// Edit describes the caller-supplied changes for a versioned update. Only
// non-nil fields are applied; Name/Description/Content are compared against
// the current fragment to decide whether a version bump is warranted.
type Edit struct {
	Name        *string
	Description *string
	Content     *string
	Reason      string
}

// UpdateVersioned applies edit to the fragment identified by id and bumps
// its version iff Name, Description, or Content actually changed. The
// pre-edit state is appended to Versions as a Snapshot, and the oldest
// snapshots are dropped once Versions exceeds MaxVersionHistory.
//
// Locked fragments reject content changes with Protected; frozen sections
// are enforced as a substring invariant on the new content.
func (s *Store) UpdateVersioned(storyID, id string, edit Edit) (*Fragment, error) {
	const op = "fragment.UpdateVersioned"
	f, err := s.Get(storyID, id)
	if err != nil {
		return nil, err
	}

	name, description, content := f.Name, f.Description, f.Content
	if edit.Name != nil {
		name = *edit.Name
	}
	if edit.Description != nil {
		description = *edit.Description
	}
	if edit.Content != nil {
		content = *edit.Content
	}

	if name == f.Name && description == f.Description && content == f.Content {
		return f, nil
	}

	if content != f.Content {
		if f.Locked() {
			return nil, coreerr.New(op, coreerr.Protected, "fragment %s is locked", id)
		}
		if err := enforceFrozenSections(f, content); err != nil {
			return nil, err
		}
	}

	return s.commitVersion(storyID, f, name, description, content, edit.Reason)
}

// commitVersion pushes f's current state onto its Versions history (trimming
// the oldest once MaxVersionHistory is exceeded) and persists name/
// description/content as the new version. Shared by UpdateVersioned and
// RevertToVersion so the snapshot bookkeeping has exactly one implementation.
func (s *Store) commitVersion(storyID string, f *Fragment, name, description, content, reason string) (*Fragment, error) {
	next := *f
	next.Name = name
	next.Description = description
	next.Content = content

	snap := Snapshot{
		Version:     f.Version,
		Name:        f.Name,
		Description: f.Description,
		Content:     f.Content,
		CreatedAt:   f.UpdatedAt,
		Reason:      reason,
	}
	next.Versions = append(append([]Snapshot{}, f.Versions...), snap)
	if len(next.Versions) > MaxVersionHistory {
		next.Versions = next.Versions[len(next.Versions)-MaxVersionHistory:]
	}
	next.Version = f.Version + 1
	next.UpdatedAt = time.Now()

	if err := s.Update(storyID, &next); err != nil {
		return nil, err
	}
	return &next, nil
}

// enforceFrozenSections fails with Protected if any frozen section's text
// is no longer present verbatim in newContent.
func enforceFrozenSections(f *Fragment, newContent string) error {
	for _, fs := range f.FrozenSections() {
		if fs.Text == "" {
			continue
		}
		if !strings.Contains(newContent, fs.Text) {
			return coreerr.New("fragment.enforceFrozenSections", coreerr.Protected, "frozen section %s no longer present", fs.ID)
		}
	}
	return nil
}

// RevertToVersion restores the fragment to a prior Snapshot's Name,
// Description, and Content, pushing the current state onto Versions as a
// new snapshot (so a revert is itself undoable) and bumping Version. version
// of 0 means "the latest prior snapshot" rather than a specific version
// number.
//
// A revert is exempt from the locked/frozen-section write guard: it
// restores content the fragment already held at some point, rather than
// introducing a new edit, so neither check applies here.
func (s *Store) RevertToVersion(storyID, id string, version int) (*Fragment, error) {
	const op = "fragment.RevertToVersion"
	f, err := s.Get(storyID, id)
	if err != nil {
		return nil, err
	}

	if version == 0 {
		if len(f.Versions) == 0 {
			return nil, coreerr.New(op, coreerr.NotFound, "fragment %s has no prior version to revert to", id)
		}
		version = f.Versions[len(f.Versions)-1].Version
	}

	var target *Snapshot
	for i := range f.Versions {
		if f.Versions[i].Version == version {
			target = &f.Versions[i]
			break
		}
	}
	if target == nil {
		return nil, coreerr.New(op, coreerr.NotFound, "fragment %s has no version %d", id, version)
	}

	return s.commitVersion(storyID, f, target.Name, target.Description, target.Content, "revert to version "+strconv.Itoa(version))
}
