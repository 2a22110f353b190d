package vectorindex

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkloom/inkloom-core/pkg/fragment"
	"github.com/inkloom/inkloom-core/pkg/idgen"
)

// wordOverlapEmbed is a deterministic stand-in embedder for tests: it
// one-hot encodes over a fixed vocabulary so cosine similarity tracks word
// overlap, without depending on any real embedding backend.
var vocab = []string{"dragon", "castle", "forest", "river", "sword"}

func wordOverlapEmbed(_ context.Context, text string) ([]float32, error) {
	lower := strings.ToLower(text)
	vec := make([]float32, len(vocab))
	for i, word := range vocab {
		if strings.Contains(lower, word) {
			vec[i] = 1
		}
	}
	return vec, nil
}

func TestIndex_UpsertSkipsProseFragments(t *testing.T) {
	idx := New(wordOverlapEmbed)
	prose := &fragment.Fragment{ID: "pr-1", Type: idgen.TypeProse, Content: "dragon castle"}
	require.NoError(t, idx.Upsert(context.Background(), "story-1", prose))

	sim, err := idx.ForStory("story-1").Similarity("dragon castle", prose)
	require.NoError(t, err)
	assert.Zero(t, sim, "prose fragments are never indexed, so similarity must be 0")
}

func TestIndex_SimilarityRanksCloserContentHigher(t *testing.T) {
	idx := New(wordOverlapEmbed)
	ctx := context.Background()
	knight := &fragment.Fragment{ID: "ch-knight", Type: idgen.TypeCharacter, Content: "A knight who fights dragon with sword."}
	baker := &fragment.Fragment{ID: "ch-baker", Type: idgen.TypeCharacter, Content: "A baker who lives near the river."}
	require.NoError(t, idx.Upsert(ctx, "story-1", knight))
	require.NoError(t, idx.Upsert(ctx, "story-1", baker))

	si := idx.ForStory("story-1")
	knightSim, err := si.Similarity("a dragon attacks with a sword", knight)
	require.NoError(t, err)
	bakerSim, err := si.Similarity("a dragon attacks with a sword", baker)
	require.NoError(t, err)

	assert.Greater(t, knightSim, bakerSim)
}

func TestIndex_SimilarityIsScopedPerStory(t *testing.T) {
	idx := New(wordOverlapEmbed)
	ctx := context.Background()
	f := &fragment.Fragment{ID: "ch-shared-id", Type: idgen.TypeCharacter, Content: "dragon"}
	require.NoError(t, idx.Upsert(ctx, "story-a", f))

	sim, err := idx.ForStory("story-b").Similarity("dragon", f)
	require.NoError(t, err)
	assert.Zero(t, sim, "a fragment indexed under one story must not surface under another")
}

func TestIndex_DeleteRemovesFragmentFromSimilarity(t *testing.T) {
	idx := New(wordOverlapEmbed)
	ctx := context.Background()
	f := &fragment.Fragment{ID: "ch-1", Type: idgen.TypeCharacter, Content: "dragon castle"}
	require.NoError(t, idx.Upsert(ctx, "story-1", f))
	require.NoError(t, idx.Delete(ctx, "story-1", f.ID))

	sim, err := idx.ForStory("story-1").Similarity("dragon castle", f)
	require.NoError(t, err)
	assert.Zero(t, sim)
}

func TestIndex_DeleteOnUnknownStoryIsNoop(t *testing.T) {
	idx := New(wordOverlapEmbed)
	assert.NoError(t, idx.Delete(context.Background(), "never-seen", "ch-1"))
}
