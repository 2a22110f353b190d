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

// Package fragment implements the canonical fragment store: atomic,
// versioned, per-story CRUD over a branched content layout.
package fragment

import (
	"time"

	"github.com/inkloom/inkloom-core/pkg/idgen"
)

// Placement controls where a sticky fragment lands in the assembled
// message list: the system slot or the user slot.
type Placement string

const (
	PlacementSystem Placement = "system"
	PlacementUser   Placement = "user"
)

// MaxVersionHistory bounds versions[] so a fragment's history doesn't grow
// unbounded. This resolves spec.md's open question in favor of the
// suggested default; older snapshots are dropped oldest-first.
const MaxVersionHistory = 64

// Snapshot is a single prior state of a fragment's versioned fields.
type Snapshot struct {
	Version     int       `json:"version"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"createdAt"`
	Reason      string    `json:"reason,omitempty"`
}

// Fragment is the universal content unit: prose, character, guideline,
// knowledge, image, icon, marker, or a plugin-defined type.
type Fragment struct {
	ID          string         `json:"id"`
	Type        idgen.FragmentType `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Content     string         `json:"content"`
	Tags        []string       `json:"tags"`
	Refs        []string       `json:"refs"`
	Sticky      bool           `json:"sticky"`
	Placement   Placement      `json:"placement,omitempty"`
	Order       int            `json:"order"`
	Archived    bool           `json:"archived"`
	Version     int            `json:"version"`
	Versions    []Snapshot     `json:"versions"`
	Meta        map[string]any `json:"meta"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// Well-known meta keys the core reads and writes directly. Plugins and
// callers may add others; the store never validates unknown keys.
const (
	MetaLocked            = "locked"
	MetaFrozenSections     = "frozenSections"
	MetaGeneratedFrom      = "generatedFrom"
	MetaGenerationMode     = "generationMode"
	MetaPreviousFragmentID = "previousFragmentId"
	MetaVariationOf        = "variationOf"
	MetaVisualRefs         = "visualRefs"
	MetaAnnotations        = "annotations"
	MetaSource             = "source"
	MetaAnalysisID         = "analysisId"
	MetaSuggestionIndex    = "suggestionIndex"
	MetaPreviousContent    = "previousContent"
)

// FrozenSection is a substring of Content that tool-driven writes must
// preserve verbatim, stored under meta["frozenSections"].
type FrozenSection struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Normalize fills in the defaults spec.md requires of a freshly loaded
// fragment: archived defaults false, version defaults to 1, versions
// defaults to an empty (non-nil) slice, tags/refs default to empty slices,
// meta defaults to an empty map.
func (f *Fragment) Normalize() {
	if f.Version == 0 {
		f.Version = 1
	}
	if f.Versions == nil {
		f.Versions = []Snapshot{}
	}
	if f.Tags == nil {
		f.Tags = []string{}
	}
	if f.Refs == nil {
		f.Refs = []string{}
	}
	if f.Meta == nil {
		f.Meta = map[string]any{}
	}
}

// FrozenSections extracts meta["frozenSections"] into typed form. Returns
// nil if absent or malformed (malformed is treated as "no constraint", the
// write guard never panics on bad metadata).
func (f *Fragment) FrozenSections() []FrozenSection {
	raw, ok := f.Meta[MetaFrozenSections]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []FrozenSection:
		return v
	case []any:
		out := make([]FrozenSection, 0, len(v))
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			id, _ := m["id"].(string)
			text, _ := m["text"].(string)
			out = append(out, FrozenSection{ID: id, Text: text})
		}
		return out
	default:
		return nil
	}
}

// Locked reports whether meta["locked"] is true.
func (f *Fragment) Locked() bool {
	v, ok := f.Meta[MetaLocked].(bool)
	return ok && v
}
