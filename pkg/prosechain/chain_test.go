package prosechain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkloom/inkloom-core/pkg/idgen"
)

// stubFragments resolves every id not listed in types to idgen.TypeProse, so
// existing tests that only care about chain bookkeeping don't need to spell
// out a type for each "pr-*" id.
type stubFragments struct {
	types map[string]idgen.FragmentType
}

func (f *stubFragments) Type(storyID, id string) (idgen.FragmentType, error) {
	if f != nil {
		if typ, ok := f.types[id]; ok {
			return typ, nil
		}
	}
	return idgen.TypeProse, nil
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(t.TempDir())
	s.Fragments = &stubFragments{}
	return s
}

func TestStore_AddSectionAndVariation(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.AddSection("story-1", "main", "pr-aaa"))
	require.NoError(t, s.AddSection("story-1", "main", "pr-bbb"))
	require.NoError(t, s.AddVariation("story-1", "main", 0, "pr-ccc"))

	c, err := s.Get("story-1", "main")
	require.NoError(t, err)
	require.Len(t, c.Sections, 2)
	assert.Equal(t, []string{"pr-aaa", "pr-ccc"}, c.Sections[0].Variations)
	assert.Equal(t, "pr-ccc", c.Sections[0].Active)
}

func TestStore_SwitchActiveRejectsUnknownVariation(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AddSection("story-1", "main", "pr-aaa"))

	err := s.SwitchActive("story-1", "main", 0, "pr-ghost")
	require.Error(t, err)
}

func TestStore_Reorder(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AddSection("story-1", "main", "pr-aaa"))
	require.NoError(t, s.AddSection("story-1", "main", "pr-bbb"))
	require.NoError(t, s.AddSection("story-1", "main", "pr-ccc"))

	require.NoError(t, s.Reorder("story-1", "main", []int{2, 0, 1}))

	c, err := s.Get("story-1", "main")
	require.NoError(t, err)
	assert.Equal(t, "pr-ccc", c.Sections[0].Active)
	assert.Equal(t, "pr-aaa", c.Sections[1].Active)
	assert.Equal(t, "pr-bbb", c.Sections[2].Active)
}

func TestStore_ReorderRejectsInvalidPermutation(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AddSection("story-1", "main", "pr-aaa"))
	require.NoError(t, s.AddSection("story-1", "main", "pr-bbb"))

	err := s.Reorder("story-1", "main", []int{0, 0})
	require.Error(t, err)
}

func TestStore_RemoveSectionShiftsIndices(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AddSection("story-1", "main", "pr-aaa"))
	require.NoError(t, s.AddSection("story-1", "main", "pr-bbb"))
	require.NoError(t, s.AddSection("story-1", "main", "pr-ccc"))

	removed, err := s.RemoveSection("story-1", "main", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"pr-bbb"}, removed)

	idx, err := s.FindSectionIndex("story-1", "main", "pr-ccc")
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
}

func TestStore_ForkChainTruncates(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AddSection("story-1", "main", "pr-aaa"))
	require.NoError(t, s.AddSection("story-1", "main", "pr-bbb"))
	require.NoError(t, s.AddSection("story-1", "main", "pr-ccc"))

	require.NoError(t, s.ForkChain("story-1", "main", "br-child", 1))

	child, err := s.Get("story-1", "br-child")
	require.NoError(t, err)
	require.Len(t, child.Sections, 2)
	assert.Equal(t, "pr-bbb", child.Sections[1].Active)
}

func TestStore_AddSectionAcceptsMarkerRejectsOtherTypes(t *testing.T) {
	s := New(t.TempDir())
	s.Fragments = &stubFragments{types: map[string]idgen.FragmentType{
		"mk-chapter": idgen.TypeMarker,
		"ch-aki":     idgen.TypeCharacter,
	}}

	require.NoError(t, s.AddSection("story-1", "main", "mk-chapter"), "marker fragments may occupy a section")

	err := s.AddSection("story-1", "main", "ch-aki")
	require.Error(t, err, "a character fragment must not occupy a chain section")

	c, err := s.Get("story-1", "main")
	require.NoError(t, err)
	require.Len(t, c.Sections, 1, "the rejected fragment must not have been appended")
}
