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

// Package genlog persists the append-only audit record written once per
// save-producing generation call.
package genlog

import (
	"time"

	"github.com/inkloom/inkloom-core/pkg/coreerr"
	"github.com/inkloom/inkloom-core/pkg/idgen"
	"github.com/inkloom/inkloom-core/pkg/llm"
	"github.com/inkloom/inkloom-core/pkg/storylayout"
)

// Entry is one generation-log record.
type Entry struct {
	ID            string         `json:"id"`
	Input         string         `json:"input"`
	Messages      []llm.Message  `json:"messages"`
	ToolCalls     []llm.ToolCall `json:"toolCalls"`
	Text          string         `json:"text"`
	FragmentID    string         `json:"fragmentId,omitempty"`
	ModelID       string         `json:"modelId"`
	Duration      time.Duration  `json:"duration"`
	StepCount     int            `json:"stepCount"`
	FinishReason  string         `json:"finishReason"`
	StepsExceeded bool           `json:"stepsExceeded"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// Store persists Entry records, one file per entry, append-only.
type Store struct {
	dataDir string
}

// New creates a genlog Store rooted at dataDir.
func New(dataDir string) *Store {
	return &Store{dataDir: dataDir}
}

// Append writes a new Entry, allocating its id and CreatedAt. Callers set
// StepsExceeded themselves (stepCount >= settings.maxSteps && finishReason
// != "stop"), since only they know the story's configured maxSteps.
func (s *Store) Append(storyID string, e Entry) (*Entry, error) {
	now := time.Now()
	e.ID = idgen.LogID(now)
	e.CreatedAt = now

	path := storylayout.GenerationLogPath(s.dataDir, storyID, e.ID)
	if err := storylayout.WriteJSONAtomic(path, &e); err != nil {
		return nil, coreerr.Wrap("genlog.Append", coreerr.Internal, err, "write generation log entry")
	}
	return &e, nil
}

// Get loads a single entry by id.
func (s *Store) Get(storyID, id string) (*Entry, error) {
	var e Entry
	path := storylayout.GenerationLogPath(s.dataDir, storyID, id)
	if err := storylayout.ReadJSON(path, &e); err != nil {
		return nil, coreerr.Wrap("genlog.Get", coreerr.NotFound, err, "generation log %s not found", id)
	}
	return &e, nil
}
