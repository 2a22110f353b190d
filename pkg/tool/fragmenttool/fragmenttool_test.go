package fragmenttool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkloom/inkloom-core/pkg/association"
	"github.com/inkloom/inkloom-core/pkg/coreerr"
	"github.com/inkloom/inkloom-core/pkg/fragment"
	"github.com/inkloom/inkloom-core/pkg/idgen"
	"github.com/inkloom/inkloom-core/pkg/llm"
)

type singleBranchChain struct{ active string }

func (c *singleBranchChain) ActiveBranchID(storyID string) (string, error) { return c.active, nil }
func (c *singleBranchChain) Chain(storyID, branchID string) ([]string, error) {
	return []string{branchID}, nil
}

func newScope(t *testing.T) *Scope {
	t.Helper()
	dataDir := t.TempDir()
	chain := &singleBranchChain{active: "main"}
	fragStore := fragment.New(dataDir, chain)
	assocStore := association.New(dataDir, fragStore)
	return &Scope{StoryID: "story-1", Fragments: fragStore, Associations: assocStore}
}

func TestRegistry_CreateThenGet(t *testing.T) {
	scope := newScope(t)
	tools := Registry()

	_, err := Dispatch(tools, scope, llm.ToolCall{
		Name: "createFragment",
		Arguments: map[string]any{
			"id": "ch-aki", "type": "character", "name": "Aki", "content": "A quiet archivist.",
		},
	})
	require.NoError(t, err)

	result, err := Dispatch(tools, scope, llm.ToolCall{Name: "getFragment", Arguments: map[string]any{"id": "ch-aki"}})
	require.NoError(t, err)
	assert.Equal(t, "Aki", result["name"])
}

func TestRegistry_PatchFragmentReplacesFirstOccurrence(t *testing.T) {
	scope := newScope(t)
	tools := Registry()

	require.NoError(t, scope.Fragments.Create(scope.StoryID, &fragment.Fragment{
		ID: "ch-aki", Type: idgen.TypeCharacter, Name: "Aki", Content: "Aki is tall.",
	}))

	result, err := Dispatch(tools, scope, llm.ToolCall{
		Name:      "patchFragment",
		Arguments: map[string]any{"id": "ch-aki", "oldText": "tall", "newText": "short"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Aki is short.", result["content"])
}

func TestRegistry_PatchFragmentRejectsMissingText(t *testing.T) {
	scope := newScope(t)
	tools := Registry()

	require.NoError(t, scope.Fragments.Create(scope.StoryID, &fragment.Fragment{
		ID: "ch-aki", Type: idgen.TypeCharacter, Name: "Aki", Content: "Aki is tall.",
	}))

	_, err := Dispatch(tools, scope, llm.ToolCall{
		Name:      "patchFragment",
		Arguments: map[string]any{"id": "ch-aki", "oldText": "nonexistent", "newText": "short"},
	})
	require.Error(t, err)
}

func TestRegistry_LockedFragmentRejectsUpdate(t *testing.T) {
	scope := newScope(t)
	tools := Registry()

	require.NoError(t, scope.Fragments.Create(scope.StoryID, &fragment.Fragment{
		ID: "ch-aki", Type: idgen.TypeCharacter, Content: "locked text",
		Meta: map[string]any{fragment.MetaLocked: true},
	}))

	newContent := "trying to change"
	_, err := Dispatch(tools, scope, llm.ToolCall{
		Name:      "updateFragment",
		Arguments: map[string]any{"id": "ch-aki", "content": newContent},
	})
	require.Error(t, err)
	code, ok := coreerr.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, coreerr.Protected, code)
}

func TestRegistry_AddTagAndSearchByTag(t *testing.T) {
	scope := newScope(t)
	tools := Registry()

	require.NoError(t, scope.Fragments.Create(scope.StoryID, &fragment.Fragment{ID: "ch-aki", Type: idgen.TypeCharacter, Name: "Aki"}))

	_, err := Dispatch(tools, scope, llm.ToolCall{Name: "addTag", Arguments: map[string]any{"id": "ch-aki", "tag": "Protagonist"}})
	require.NoError(t, err)

	result, err := Dispatch(tools, scope, llm.ToolCall{Name: "searchFragmentsByTag", Arguments: map[string]any{"tag": "protagonist"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"ch-aki"}, result["fragmentIds"])
}

func TestRegistry_AddRefRejectsSelfReference(t *testing.T) {
	scope := newScope(t)
	tools := Registry()
	require.NoError(t, scope.Fragments.Create(scope.StoryID, &fragment.Fragment{ID: "ch-aki", Type: idgen.TypeCharacter, Name: "Aki"}))

	_, err := Dispatch(tools, scope, llm.ToolCall{Name: "addRef", Arguments: map[string]any{"id": "ch-aki", "target": "ch-aki"}})
	require.Error(t, err)
}

func TestDispatch_UnknownToolIsInvalidArgument(t *testing.T) {
	scope := newScope(t)
	_, err := Dispatch(Registry(), scope, llm.ToolCall{Name: "doesNotExist"})
	require.Error(t, err)
	code, ok := coreerr.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, coreerr.InvalidArgument, code)
}
