package contextbuilder

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkloom/inkloom-core/pkg/branch"
	"github.com/inkloom/inkloom-core/pkg/fragment"
	"github.com/inkloom/inkloom-core/pkg/idgen"
	"github.com/inkloom/inkloom-core/pkg/llm"
	"github.com/inkloom/inkloom-core/pkg/prosechain"
	"github.com/inkloom/inkloom-core/pkg/story"
)

// stubEmbedder scores every candidate from a fixed map, for deterministic
// ranking tests independent of any real vector backend.
type stubEmbedder struct {
	scores map[string]float64
}

func (e *stubEmbedder) Similarity(input string, candidate *fragment.Fragment) (float64, error) {
	return e.scores[candidate.ID], nil
}

func newHarness(t *testing.T) (*Builder, *fragment.Store, *prosechain.Store, *story.Store, string) {
	t.Helper()
	dataDir := t.TempDir()
	mgr := branch.New(dataDir, nil)
	_, err := mgr.ListBranches("story-1") // force default-branch creation
	require.NoError(t, err)

	fragStore := fragment.New(dataDir, mgr)
	proseStore := prosechain.New(dataDir)
	proseStore.Fragments = fragStore
	storyStore := story.New(dataDir)

	builder := &Builder{
		Fragments:  fragStore,
		ProseChain: proseStore,
		Stories:    storyStore,
	}
	return builder, fragStore, proseStore, storyStore, dataDir
}

func TestBuilder_BuildSelectsAndShortlists(t *testing.T) {
	builder, fragStore, _, storyStore, _ := newHarness(t)

	meta, err := storyStore.Create("Tale", "")
	require.NoError(t, err)
	meta.Settings.SummarizationThreshold = 12
	require.NoError(t, storyStore.Update(meta))

	require.NoError(t, fragStore.Create(meta.ID, &fragment.Fragment{
		ID: "ch-aki", Type: idgen.TypeCharacter, Name: "Aki", Sticky: true, Placement: fragment.PlacementSystem,
	}))
	require.NoError(t, fragStore.Create(meta.ID, &fragment.Fragment{
		ID: "ch-ben", Type: idgen.TypeCharacter, Name: "Ben",
	}))

	state, err := builder.Build(meta.ID, "main", "find ben", BuildOptions{})
	require.NoError(t, err)

	require.Len(t, state.StickyByPlacement[fragment.PlacementSystem], 1)
	assert.Equal(t, "ch-aki", state.StickyByPlacement[fragment.PlacementSystem][0].ID)

	var ids []string
	for _, f := range state.Characters {
		ids = append(ids, f.ID)
	}
	assert.Contains(t, ids, "ch-aki")
	assert.Contains(t, ids, "ch-ben")
}

func TestBuilder_BuildExcludesFragmentID(t *testing.T) {
	builder, fragStore, _, storyStore, _ := newHarness(t)
	meta, err := storyStore.Create("Tale", "")
	require.NoError(t, err)

	require.NoError(t, fragStore.Create(meta.ID, &fragment.Fragment{ID: "kn-one", Type: idgen.TypeKnowledge, Name: "One"}))
	require.NoError(t, fragStore.Create(meta.ID, &fragment.Fragment{ID: "kn-two", Type: idgen.TypeKnowledge, Name: "Two"}))

	state, err := builder.Build(meta.ID, "main", "input", BuildOptions{ExcludeFragmentID: "kn-one"})
	require.NoError(t, err)

	require.Len(t, state.Knowledge, 1)
	assert.Equal(t, "kn-two", state.Knowledge[0].ID)
}

func TestBuilder_BuildExcludesFragmentIDFromProse(t *testing.T) {
	builder, fragStore, proseStore, storyStore, _ := newHarness(t)
	meta, err := storyStore.Create("Tale", "")
	require.NoError(t, err)

	require.NoError(t, fragStore.Create(meta.ID, &fragment.Fragment{ID: "pr-old", Type: idgen.TypeProse, Content: "old"}))
	require.NoError(t, proseStore.AddSection(meta.ID, "main", "pr-old"))

	state, err := builder.Build(meta.ID, "main", "input", BuildOptions{ExcludeFragmentID: "pr-old"})
	require.NoError(t, err)

	assert.Empty(t, state.ProseOrdered, "the fragment being regenerated/refined must not appear in its own recent-prose context")
}

func TestBuilder_BuildSummarizesProseBeyondThreshold(t *testing.T) {
	builder, fragStore, proseStore, storyStore, _ := newHarness(t)
	meta, err := storyStore.Create("Tale", "")
	require.NoError(t, err)
	meta.Settings.SummarizationThreshold = 2
	require.NoError(t, storyStore.Update(meta))

	for i := 0; i < 3; i++ {
		id := "pr-" + string(rune('a'+i))
		require.NoError(t, fragStore.Create(meta.ID, &fragment.Fragment{ID: id, Type: idgen.TypeProse, Content: id}))
		require.NoError(t, proseStore.AddSection(meta.ID, "main", id))
	}

	state, err := builder.Build(meta.ID, "main", "input", BuildOptions{})
	require.NoError(t, err)

	assert.True(t, state.ProseSummarized)
	assert.Len(t, state.ProseOrdered, 2, "only the last summarizationThreshold sections stay unsummarized")
}

func TestBuilder_RankingPrefersRecentRefsThenTagsThenEmbedderThenRecency(t *testing.T) {
	builder, fragStore, proseStore, storyStore, _ := newHarness(t)
	meta, err := storyStore.Create("Tale", "")
	require.NoError(t, err)
	meta.Settings.SummarizationThreshold = 99
	require.NoError(t, storyStore.Update(meta))

	require.NoError(t, fragStore.Create(meta.ID, &fragment.Fragment{ID: "pr-1", Type: idgen.TypeProse, Content: "...", Refs: []string{"ch-referenced"}}))
	require.NoError(t, proseStore.AddSection(meta.ID, "main", "pr-1"))

	require.NoError(t, fragStore.Create(meta.ID, &fragment.Fragment{ID: "ch-referenced", Type: idgen.TypeCharacter, Name: "Referenced"}))
	require.NoError(t, fragStore.Create(meta.ID, &fragment.Fragment{ID: "ch-other", Type: idgen.TypeCharacter, Name: "Other"}))

	state, err := builder.Build(meta.ID, "main", "irrelevant input", BuildOptions{})
	require.NoError(t, err)

	require.Len(t, state.Characters, 2)
	assert.Equal(t, "ch-referenced", state.Characters[0].ID, "a character ref'd by recent prose ranks first")
}

func TestBuilder_NilEmbedderLeavesThreeFactorOrderingUnchanged(t *testing.T) {
	builder, fragStore, _, storyStore, _ := newHarness(t)
	builder.Embedder = nil
	meta, err := storyStore.Create("Tale", "")
	require.NoError(t, err)

	require.NoError(t, fragStore.Create(meta.ID, &fragment.Fragment{ID: "gl-a", Type: idgen.TypeGuideline, Name: "A"}))
	require.NoError(t, fragStore.Create(meta.ID, &fragment.Fragment{ID: "gl-b", Type: idgen.TypeGuideline, Name: "B"}))

	state, err := builder.Build(meta.ID, "main", "input", BuildOptions{})
	require.NoError(t, err)
	assert.Len(t, state.Guidelines, 2)
}

func TestAssemble_FixedOrderAndSourceTags(t *testing.T) {
	state := &State{
		Story: &story.Meta{Summary: "A tale of two storms."},
		Input: "continue the scene",
		StickyByPlacement: map[fragment.Placement][]*fragment.Fragment{
			fragment.PlacementSystem: {{ID: "ch-aki", Name: "Aki", Content: "Aki is brave."}},
		},
		Characters: []*fragment.Fragment{{ID: "ch-ben", Name: "Ben", Content: "Ben is loyal."}},
		Guidelines: []*fragment.Fragment{{ID: "gl-tone", Name: "Tone", Content: "Keep it wistful."}},
		Knowledge:  []*fragment.Fragment{{ID: "kn-map", Name: "Map", Content: "The city lies north."}},
		ProseOrdered: []*fragment.Fragment{
			{ID: "pr-1", Content: "It was raining."},
		},
	}

	messages := Assemble(state, AssembleOptions{
		BaseInstructions: "You are the prose engine.",
		ExtraTools:       []llm.ToolDefinition{{Name: "search_knowledge", Description: "search"}},
	})

	var tags []string
	for _, m := range messages {
		tags = append(tags, m.SourceTag)
	}
	assert.Equal(t, []string{
		"base-instructions",
		"system-fragments",
		"summary",
		"characters",
		"guidelines",
		"knowledge",
		"recent-prose",
		"available-tools",
		"input",
	}, tags)

	assert.Equal(t, llm.RoleSystem, messages[0].Role)
	assert.Equal(t, llm.RoleSystem, messages[1].Role)
	assert.Equal(t, llm.RoleUser, messages[len(messages)-1].Role)
	assert.Equal(t, "continue the scene", messages[len(messages)-1].Content)
}

func TestAssemble_SkipsEmptySections(t *testing.T) {
	state := &State{
		Story:             &story.Meta{},
		Input:             "go on",
		StickyByPlacement: map[fragment.Placement][]*fragment.Fragment{},
	}

	messages := Assemble(state, AssembleOptions{})
	require.Len(t, messages, 1, "only the caller input message survives when every other section is empty")
	assert.Equal(t, "input", messages[0].SourceTag)
}

func TestAssemble_AdvancedOrderModeOverridesFragmentOrder(t *testing.T) {
	state := &State{
		Story: &story.Meta{
			Settings: story.Settings{ContextOrderMode: story.ContextOrderAdvanced},
		},
		Input:             "go on",
		StickyByPlacement: map[fragment.Placement][]*fragment.Fragment{},
		Characters: []*fragment.Fragment{
			{ID: "ch-a", Name: "A", Content: "a"},
			{ID: "ch-b", Name: "B", Content: "b"},
		},
	}

	messages := Assemble(state, AssembleOptions{FragmentOrder: []string{"ch-b", "ch-a"}})
	require.Len(t, messages, 2)
	assert.Contains(t, messages[0].Content, "## B\nb")
	assert.Less(t, strings.Index(messages[0].Content, "B"), strings.Index(messages[0].Content, "A"))
}
