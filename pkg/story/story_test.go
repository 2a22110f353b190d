package story

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkloom/inkloom-core/pkg/coreerr"
)

func TestStore_CreateAppliesSettingsDefaults(t *testing.T) {
	store := New(t.TempDir())

	m, err := store.Create("Tale of Embers", "a short fantasy")
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID)
	assert.Equal(t, 12, m.Settings.SummarizationThreshold)
	assert.Equal(t, 10, m.Settings.MaxSteps)
	assert.Equal(t, ContextOrderDefault, m.Settings.ContextOrderMode)
	assert.NotNil(t, m.Settings.EnabledPlugins)
}

func TestStore_GetMissingIsNotFound(t *testing.T) {
	store := New(t.TempDir())

	_, err := store.Get("story-missing")
	require.Error(t, err)
	code, ok := coreerr.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, coreerr.NotFound, code)
}

func TestStore_UpdateRoundTrips(t *testing.T) {
	store := New(t.TempDir())
	m, err := store.Create("Tale", "")
	require.NoError(t, err)

	m.Name = "Tale, Revised"
	m.Summary = "Now with a summary."
	require.NoError(t, store.Update(m))

	got, err := store.Get(m.ID)
	require.NoError(t, err)
	assert.Equal(t, "Tale, Revised", got.Name)
	assert.Equal(t, "Now with a summary.", got.Summary)
}

func TestStore_DeleteRemovesStory(t *testing.T) {
	store := New(t.TempDir())
	m, err := store.Create("Tale", "")
	require.NoError(t, err)

	require.NoError(t, store.Delete(m.ID))

	_, err = store.Get(m.ID)
	require.Error(t, err)
}
