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

// Package vectorindex maintains one in-memory chromem-go collection per
// story of non-prose fragment text, and exposes it as an optional,
// additive ranking signal for the context builder's shortlist.
package vectorindex

import (
	"context"
	"fmt"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/inkloom/inkloom-core/pkg/fragment"
	"github.com/inkloom/inkloom-core/pkg/idgen"
)

// EmbedFunc produces an embedding vector for a piece of text. No concrete
// embedding-provider wire protocol is vendored here, same as the LLM
// provider boundary: callers supply whatever embedding backend they use.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

const metaFragmentID = "fragmentId"

// Index is a process-wide chromem-go database, lazily partitioned into one
// collection per story.
type Index struct {
	db    *chromem.DB
	embed EmbedFunc

	mu          sync.RWMutex
	collections map[string]*chromem.Collection
	// indexed tracks which fragment ids are currently stored per story, so
	// Similarity can pass chromem an exact nResults (the full collection
	// size) instead of guessing a topK against a metadata-filtered subset.
	indexed map[string]map[string]struct{}
}

// New creates an in-memory index. embed must not be nil; it is used both
// to vectorize fragment content on Upsert and to vectorize the caller's
// input on Similarity.
func New(embed EmbedFunc) *Index {
	return &Index{
		db:          chromem.NewDB(),
		embed:       embed,
		collections: make(map[string]*chromem.Collection),
		indexed:     make(map[string]map[string]struct{}),
	}
}

// identityEmbed satisfies chromem's required EmbeddingFunc signature for a
// collection. Vectors always arrive pre-computed through Upsert/Similarity,
// so this is never actually invoked by chromem itself.
func identityEmbed(_ context.Context, _ string) ([]float32, error) {
	return nil, fmt.Errorf("vectorindex: identity embedding function invoked; vectors must be pre-computed")
}

func (idx *Index) collection(storyID string) (*chromem.Collection, error) {
	idx.mu.RLock()
	if col, ok := idx.collections[storyID]; ok {
		idx.mu.RUnlock()
		return col, nil
	}
	idx.mu.RUnlock()

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if col, ok := idx.collections[storyID]; ok {
		return col, nil
	}
	col, err := idx.db.GetOrCreateCollection(storyID, nil, identityEmbed)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: get/create collection for story %s: %w", storyID, err)
	}
	idx.collections[storyID] = col
	return col, nil
}

// Upsert (re)indexes a fragment's content under its story's collection.
// Prose fragments are skipped: the shortlist signal only ranks the
// non-prose candidate set (characters, guidelines, knowledge); prose
// ordering is governed entirely by the prose chain, never by similarity.
func (idx *Index) Upsert(ctx context.Context, storyID string, f *fragment.Fragment) error {
	if f == nil || f.Type == idgen.TypeProse {
		return nil
	}
	col, err := idx.collection(storyID)
	if err != nil {
		return err
	}
	vec, err := idx.embed(ctx, f.Content)
	if err != nil {
		return fmt.Errorf("vectorindex: embed fragment %s: %w", f.ID, err)
	}
	doc := chromem.Document{
		ID:        f.ID,
		Content:   f.Content,
		Metadata:  map[string]string{metaFragmentID: f.ID},
		Embedding: vec,
	}
	if err := col.AddDocuments(ctx, []chromem.Document{doc}, 1); err != nil {
		return fmt.Errorf("vectorindex: upsert fragment %s: %w", f.ID, err)
	}

	idx.mu.Lock()
	if idx.indexed[storyID] == nil {
		idx.indexed[storyID] = make(map[string]struct{})
	}
	idx.indexed[storyID][f.ID] = struct{}{}
	idx.mu.Unlock()
	return nil
}

// Delete removes a fragment from its story's collection. A fragment that
// was never indexed (prose, or indexed before the story had a collection)
// is a no-op.
func (idx *Index) Delete(ctx context.Context, storyID, fragmentID string) error {
	idx.mu.RLock()
	col, ok := idx.collections[storyID]
	idx.mu.RUnlock()
	if !ok {
		return nil
	}
	if err := col.Delete(ctx, nil, nil, fragmentID); err != nil {
		return fmt.Errorf("vectorindex: delete fragment %s: %w", fragmentID, err)
	}

	idx.mu.Lock()
	delete(idx.indexed[storyID], fragmentID)
	if len(idx.indexed[storyID]) == 0 {
		delete(idx.indexed, storyID)
	}
	idx.mu.Unlock()
	return nil
}

// ForStory returns a contextbuilder.Embedder scoped to one story, for
// assigning to Builder.Embedder.
func (idx *Index) ForStory(storyID string) *StoryIndex {
	return &StoryIndex{idx: idx, storyID: storyID}
}

// StoryIndex implements contextbuilder.Embedder against one story's
// collection. It satisfies the interface structurally (Similarity(input
// string, candidate *fragment.Fragment) (float64, error)) without this
// package importing pkg/contextbuilder, avoiding a dependency cycle risk
// since contextbuilder is the consumer.
type StoryIndex struct {
	idx     *Index
	storyID string
}

// Similarity returns the cosine similarity between input's embedding and
// candidate's stored embedding, or 0 if candidate was never indexed (e.g.
// it's a prose fragment, or was created before the index existed).
func (s *StoryIndex) Similarity(input string, candidate *fragment.Fragment) (float64, error) {
	if candidate == nil {
		return 0, nil
	}
	s.idx.mu.RLock()
	_, present := s.idx.indexed[s.storyID][candidate.ID]
	count := len(s.idx.indexed[s.storyID])
	s.idx.mu.RUnlock()
	if !present {
		return 0, nil
	}

	col, err := s.idx.collection(s.storyID)
	if err != nil {
		return 0, err
	}
	ctx := context.Background()
	vec, err := s.idx.embed(ctx, input)
	if err != nil {
		return 0, fmt.Errorf("vectorindex: embed input: %w", err)
	}
	// nResults is the exact number of documents currently tracked for this
	// story, so this never exceeds the collection size regardless of how
	// chromem-go's topK-vs-filtered-count validation behaves.
	results, err := col.QueryEmbedding(ctx, vec, count, nil, nil)
	if err != nil {
		return 0, fmt.Errorf("vectorindex: query similarity for %s: %w", candidate.ID, err)
	}
	for _, r := range results {
		if r.ID == candidate.ID {
			return float64(r.Similarity), nil
		}
	}
	return 0, nil
}
