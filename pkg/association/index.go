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

// Package association maintains the tag and ref inverted indexes kept per
// story (shared across all of a story's branches), keeping them
// authoritative against the owning fragment's own tags/refs fields.
package association

import (
	"strings"
	"sync"

	"github.com/inkloom/inkloom-core/pkg/coreerr"
	"github.com/inkloom/inkloom-core/pkg/fragment"
	"github.com/inkloom/inkloom-core/pkg/storylayout"
)

// Index is the persisted tag/ref inverted index for one story.
type Index struct {
	TagIndex map[string][]string `json:"tagIndex"`
	RefIndex map[string][]string `json:"refIndex"`
}

func empty() *Index {
	return &Index{TagIndex: map[string][]string{}, RefIndex: map[string][]string{}}
}

// Store loads and persists Index values and keeps the owning fragment's
// Tags/Refs fields authoritative across mutations.
type Store struct {
	dataDir  string
	fragment *fragment.Store

	mu sync.Mutex
}

// New creates an association Store backed by fragStore for fragment reads
// and writes.
func New(dataDir string, fragStore *fragment.Store) *Store {
	return &Store{dataDir: dataDir, fragment: fragStore}
}

func (s *Store) load(storyID string) (*Index, error) {
	path := storylayout.AssociationsPath(s.dataDir, storyID)
	var idx Index
	if err := storylayout.ReadJSON(path, &idx); err != nil {
		if storylayout.Exists(path) {
			return nil, coreerr.Wrap("association.load", coreerr.Internal, err, "read association index")
		}
		return empty(), nil
	}
	if idx.TagIndex == nil {
		idx.TagIndex = map[string][]string{}
	}
	if idx.RefIndex == nil {
		idx.RefIndex = map[string][]string{}
	}
	return &idx, nil
}

func (s *Store) save(storyID string, idx *Index) error {
	path := storylayout.AssociationsPath(s.dataDir, storyID)
	if err := storylayout.WriteJSONAtomic(path, idx); err != nil {
		return coreerr.Wrap("association.save", coreerr.Internal, err, "write association index")
	}
	return nil
}

func normalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

func containsStr(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func removeStr(list []string, v string) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}

// AddTag normalizes tag, adds it to the fragment's Tags (no-op if already
// present) and the story's tagIndex.
func (s *Store) AddTag(storyID, fragmentID, tag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tag = normalizeTag(tag)
	if tag == "" {
		return coreerr.New("association.AddTag", coreerr.InvalidArgument, "tag must not be empty")
	}

	f, err := s.fragment.Get(storyID, fragmentID)
	if err != nil {
		return err
	}
	if containsStr(f.Tags, tag) {
		return nil
	}
	f.Tags = append(f.Tags, tag)
	if err := s.fragment.Update(storyID, f); err != nil {
		return err
	}

	idx, err := s.load(storyID)
	if err != nil {
		return err
	}
	if !containsStr(idx.TagIndex[tag], fragmentID) {
		idx.TagIndex[tag] = append(idx.TagIndex[tag], fragmentID)
	}
	return s.save(storyID, idx)
}

// RemoveTag removes tag from the fragment's Tags and the story's tagIndex.
func (s *Store) RemoveTag(storyID, fragmentID, tag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tag = normalizeTag(tag)
	f, err := s.fragment.Get(storyID, fragmentID)
	if err != nil {
		return err
	}
	f.Tags = removeStr(f.Tags, tag)
	if err := s.fragment.Update(storyID, f); err != nil {
		return err
	}

	idx, err := s.load(storyID)
	if err != nil {
		return err
	}
	idx.TagIndex[tag] = removeStr(idx.TagIndex[tag], fragmentID)
	if len(idx.TagIndex[tag]) == 0 {
		delete(idx.TagIndex, tag)
	}
	return s.save(storyID, idx)
}

// AddRef records that fragmentID references targetID. A self-reference is
// rejected with InvalidArgument.
func (s *Store) AddRef(storyID, fragmentID, targetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if fragmentID == targetID {
		return coreerr.New("association.AddRef", coreerr.InvalidArgument, "fragment %s cannot reference itself", fragmentID)
	}

	f, err := s.fragment.Get(storyID, fragmentID)
	if err != nil {
		return err
	}
	if containsStr(f.Refs, targetID) {
		return nil
	}
	f.Refs = append(f.Refs, targetID)
	if err := s.fragment.Update(storyID, f); err != nil {
		return err
	}

	idx, err := s.load(storyID)
	if err != nil {
		return err
	}
	if !containsStr(idx.RefIndex[targetID], fragmentID) {
		idx.RefIndex[targetID] = append(idx.RefIndex[targetID], fragmentID)
	}
	return s.save(storyID, idx)
}

// RemoveRef removes fragmentID's reference to targetID.
func (s *Store) RemoveRef(storyID, fragmentID, targetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.fragment.Get(storyID, fragmentID)
	if err != nil {
		return err
	}
	f.Refs = removeStr(f.Refs, targetID)
	if err := s.fragment.Update(storyID, f); err != nil {
		return err
	}

	idx, err := s.load(storyID)
	if err != nil {
		return err
	}
	idx.RefIndex[targetID] = removeStr(idx.RefIndex[targetID], fragmentID)
	if len(idx.RefIndex[targetID]) == 0 {
		delete(idx.RefIndex, targetID)
	}
	return s.save(storyID, idx)
}

// GetBackRefs returns the ids of fragments that reference id.
func (s *Store) GetBackRefs(storyID, id string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.load(storyID)
	if err != nil {
		return nil, err
	}
	return append([]string{}, idx.RefIndex[id]...), nil
}
