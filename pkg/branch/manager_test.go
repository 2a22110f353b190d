package branch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingForker struct {
	calls []string
}

func (f *recordingForker) ForkChain(storyID, parentBranchID, childBranchID string, forkAfterIndex int) error {
	f.calls = append(f.calls, parentBranchID+">"+childBranchID)
	return nil
}

func TestManager_DefaultsToSingleMainBranch(t *testing.T) {
	m := New(t.TempDir(), nil)
	branches, err := m.ListBranches("story-1")
	require.NoError(t, err)
	require.Len(t, branches, 1)
	assert.Equal(t, "main", branches[0].ID)

	active, err := m.ActiveBranchID("story-1")
	require.NoError(t, err)
	assert.Equal(t, "main", active)
}

func TestManager_CreateBranchForksChain(t *testing.T) {
	forker := &recordingForker{}
	m := New(t.TempDir(), forker)

	b, err := m.CreateBranch("story-1", "alt-ending", "main", 3)
	require.NoError(t, err)
	assert.Equal(t, "main", b.ParentID)
	assert.Equal(t, 3, b.ForkAfterIndex)
	require.Len(t, forker.calls, 1)
	assert.Equal(t, "main>"+b.ID, forker.calls[0])

	chain, err := m.Chain("story-1", b.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID, "main"}, chain)
}

func TestManager_ActiveBranchCannotBeDeleted(t *testing.T) {
	m := New(t.TempDir(), nil)
	err := m.DeleteBranch("story-1", "main")
	require.Error(t, err)
}

func TestManager_SwitchActiveUnknownBranchFails(t *testing.T) {
	m := New(t.TempDir(), nil)
	err := m.SwitchActive("story-1", "br-ghost")
	require.Error(t, err)
}

func TestManager_DeleteNonActiveBranch(t *testing.T) {
	m := New(t.TempDir(), &recordingForker{})
	b, err := m.CreateBranch("story-1", "side", "main", 0)
	require.NoError(t, err)

	require.NoError(t, m.DeleteBranch("story-1", b.ID))

	branches, err := m.ListBranches("story-1")
	require.NoError(t, err)
	require.Len(t, branches, 1)
	assert.Equal(t, "main", branches[0].ID)
}
