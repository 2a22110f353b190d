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

// Package story persists the Story container: identity, human metadata,
// and per-story generation settings.
package story

import (
	"os"
	"time"

	"github.com/inkloom/inkloom-core/pkg/coreerr"
	"github.com/inkloom/inkloom-core/pkg/idgen"
	"github.com/inkloom/inkloom-core/pkg/storylayout"
)

// ContextOrderMode controls whether the context builder's user section
// follows default type ordering or a caller-supplied fragment order.
type ContextOrderMode string

const (
	ContextOrderDefault  ContextOrderMode = "default"
	ContextOrderAdvanced ContextOrderMode = "advanced"
)

// Settings is the per-story generation configuration.
type Settings struct {
	OutputFormat            string            `json:"outputFormat,omitempty"`
	EnabledPlugins          []string          `json:"enabledPlugins"`
	SummarizationThreshold  int               `json:"summarizationThreshold"`
	MaxSteps                int               `json:"maxSteps"`
	DefaultProviderID       string            `json:"defaultProviderId,omitempty"`
	DefaultModel            string            `json:"defaultModel,omitempty"`
	ContextOrderMode        ContextOrderMode  `json:"contextOrderMode,omitempty"`
	FragmentOrder           []string          `json:"fragmentOrder,omitempty"`
	AgentPromptOverrides    map[string]string `json:"agentPromptOverrides,omitempty"`
	LibrarianDebounceSecond int               `json:"librarianDebounceSeconds,omitempty"`
}

// Normalize fills the documented defaults: summarizationThreshold window,
// maxSteps cap, and default order mode.
func (s *Settings) Normalize() {
	if s.SummarizationThreshold == 0 {
		s.SummarizationThreshold = 12
	}
	if s.MaxSteps == 0 {
		s.MaxSteps = 10
	}
	if s.ContextOrderMode == "" {
		s.ContextOrderMode = ContextOrderDefault
	}
	if s.EnabledPlugins == nil {
		s.EnabledPlugins = []string{}
	}
	if s.LibrarianDebounceSecond == 0 {
		s.LibrarianDebounceSecond = 5
	}
}

// Meta is a story's identity and descriptive metadata.
type Meta struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Summary     string    `json:"summary,omitempty"`
	Settings    Settings  `json:"settings"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Store persists story Meta records.
type Store struct {
	dataDir string
}

// New creates a story Store rooted at dataDir.
func New(dataDir string) *Store {
	return &Store{dataDir: dataDir}
}

// Create allocates a new story id and persists its meta record.
func (s *Store) Create(name, description string) (*Meta, error) {
	now := time.Now()
	m := &Meta{
		ID:          idgen.StoryID(now),
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.Settings.Normalize()
	if err := storylayout.WriteJSONAtomic(storylayout.MetaPath(s.dataDir, m.ID), m); err != nil {
		return nil, coreerr.Wrap("story.Create", coreerr.Internal, err, "write story meta")
	}
	return m, nil
}

// Get loads a story's meta record.
func (s *Store) Get(storyID string) (*Meta, error) {
	const op = "story.Get"
	var m Meta
	if err := storylayout.ReadJSON(storylayout.MetaPath(s.dataDir, storyID), &m); err != nil {
		if os.IsNotExist(err) {
			return nil, coreerr.New(op, coreerr.NotFound, "story %s not found", storyID)
		}
		return nil, coreerr.Wrap(op, coreerr.Internal, err, "read story meta")
	}
	m.Settings.Normalize()
	return &m, nil
}

// Update persists m verbatim, touching UpdatedAt.
func (s *Store) Update(m *Meta) error {
	m.UpdatedAt = time.Now()
	m.Settings.Normalize()
	if err := storylayout.WriteJSONAtomic(storylayout.MetaPath(s.dataDir, m.ID), m); err != nil {
		return coreerr.Wrap("story.Update", coreerr.Internal, err, "write story meta")
	}
	return nil
}

// Delete removes a story's entire directory tree, cascading to its
// branches, fragments, and logs.
func (s *Store) Delete(storyID string) error {
	if err := os.RemoveAll(storylayout.StoryDir(s.dataDir, storyID)); err != nil {
		return coreerr.Wrap("story.Delete", coreerr.Internal, err, "remove story %s", storyID)
	}
	return nil
}
