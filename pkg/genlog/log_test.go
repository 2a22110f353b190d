package genlog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkloom/inkloom-core/pkg/coreerr"
	"github.com/inkloom/inkloom-core/pkg/llm"
)

func TestStore_AppendAllocatesIDAndTimestamp(t *testing.T) {
	store := New(t.TempDir())

	e, err := store.Append("story-1", Entry{
		Input:    "continue the scene",
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "continue the scene"}},
		Text:     "The rain kept falling.",
		ModelID:  "claude",
		Duration: 2 * time.Second,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, e.ID)
	assert.False(t, e.CreatedAt.IsZero())
}

func TestStore_GetRoundTrips(t *testing.T) {
	store := New(t.TempDir())

	written, err := store.Append("story-1", Entry{Input: "go on", Text: "...", StepCount: 3, StepsExceeded: false})
	require.NoError(t, err)

	got, err := store.Get("story-1", written.ID)
	require.NoError(t, err)
	assert.Equal(t, "go on", got.Input)
	assert.Equal(t, 3, got.StepCount)
}

func TestStore_GetMissingIsNotFound(t *testing.T) {
	store := New(t.TempDir())

	_, err := store.Get("story-1", "log-missing")
	require.Error(t, err)
	code, ok := coreerr.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, coreerr.NotFound, code)
}
