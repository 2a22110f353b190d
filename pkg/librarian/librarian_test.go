package librarian

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkloom/inkloom-core/pkg/branch"
	"github.com/inkloom/inkloom-core/pkg/fragment"
	"github.com/inkloom/inkloom-core/pkg/idgen"
	"github.com/inkloom/inkloom-core/pkg/prosechain"
	"github.com/inkloom/inkloom-core/pkg/story"
	"github.com/inkloom/inkloom-core/pkg/storylayout"
)

// countingAnalyzer records every invocation and can be configured to fail
// or to block until signalled, for testing coalescing under "running".
type countingAnalyzer struct {
	calls   int32
	output  AnalyzerOutput
	failErr error
	block   chan struct{}
}

func (a *countingAnalyzer) Analyze(input AnalyzerInput) (AnalyzerOutput, error) {
	atomic.AddInt32(&a.calls, 1)
	if a.block != nil {
		<-a.block
	}
	if a.failErr != nil {
		return AnalyzerOutput{}, a.failErr
	}
	return a.output, nil
}

func newTestScheduler(t *testing.T, analyzer Analyzer) (*Scheduler, *fragment.Store, *story.Store, string) {
	t.Helper()
	dataDir := t.TempDir()
	mgr := branch.New(dataDir, nil)

	fragStore := fragment.New(dataDir, mgr)
	proseStore := prosechain.New(dataDir)
	storyStore := story.New(dataDir)

	meta, err := storyStore.Create("Tale", "")
	require.NoError(t, err)
	meta.Settings.LibrarianDebounceSecond = -1 // fire near-instantly for tests; 0 is normalized to the 5s default
	require.NoError(t, storyStore.Update(meta))
	_, err = mgr.ListBranches(meta.ID) // force default-branch creation
	require.NoError(t, err)

	sched := NewScheduler(dataDir, fragStore, proseStore, storyStore, mgr, analyzer)
	return sched, fragStore, storyStore, meta.ID
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestScheduler_TriggerRunsAnalysisAndPersists(t *testing.T) {
	analyzer := &countingAnalyzer{output: AnalyzerOutput{
		Summary:    "the plot thickens",
		Directions: []string{"raise the stakes"},
	}}
	sched, _, _, storyID := newTestScheduler(t, analyzer)

	sched.Trigger(storyID, &fragment.Fragment{ID: "pr-1"})

	waitFor(t, time.Second, func() bool {
		state, err := sched.readState(storyID)
		return err == nil && state.RunStatus == StatusIdle && len(state.AnalysisIDs) == 1
	})

	state, err := sched.readState(storyID)
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, state.RunStatus)
	require.Len(t, state.AnalysisIDs, 1)

	var analysis Analysis
	require.NoError(t, storylayout.ReadJSON(storylayout.AnalysisPath(sched.DataDir, storyID, state.AnalysisIDs[0]), &analysis))
	assert.Equal(t, "the plot thickens", analysis.Summary)
}

func TestScheduler_AnalyzerErrorTransitionsToErrorState(t *testing.T) {
	analyzer := &countingAnalyzer{failErr: assert.AnError}
	sched, _, _, storyID := newTestScheduler(t, analyzer)

	sched.Trigger(storyID, &fragment.Fragment{ID: "pr-1"})

	waitFor(t, time.Second, func() bool {
		state, err := sched.readState(storyID)
		return err == nil && state.RunStatus == StatusError
	})

	state, err := sched.readState(storyID)
	require.NoError(t, err)
	assert.NotEmpty(t, state.LastError)
}

func TestScheduler_RetriggerDuringRunCoalescesIntoOneRerun(t *testing.T) {
	analyzer := &countingAnalyzer{block: make(chan struct{}), output: AnalyzerOutput{Summary: "s"}}
	sched, _, _, storyID := newTestScheduler(t, analyzer)

	sched.Trigger(storyID, &fragment.Fragment{ID: "pr-1"})
	waitFor(t, time.Second, func() bool { return atomic.LoadInt32(&analyzer.calls) >= 1 })

	// Story is now "running" (blocked). Re-triggers during this window must
	// coalesce into a single pending re-run, not one per trigger.
	sched.Trigger(storyID, &fragment.Fragment{ID: "pr-2"})
	sched.Trigger(storyID, &fragment.Fragment{ID: "pr-3"})
	sched.Trigger(storyID, &fragment.Fragment{ID: "pr-4"})

	close(analyzer.block)
	analyzer.block = nil

	waitFor(t, time.Second, func() bool { return atomic.LoadInt32(&analyzer.calls) >= 2 })
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(2), atomic.LoadInt32(&analyzer.calls), "three re-triggers during a run coalesce into exactly one rerun")
}

func TestScheduler_WriteAnnotationsDoesNotBumpFragmentVersion(t *testing.T) {
	analyzer := &countingAnalyzer{output: AnalyzerOutput{
		Summary:     "s",
		Annotations: []Annotation{{FragmentID: "pr-target", Note: "consider foreshadowing here"}},
	}}
	sched, fragStore, _, storyID := newTestScheduler(t, analyzer)

	target := &fragment.Fragment{ID: "pr-target", Type: idgen.TypeProse, Content: "draft"}
	require.NoError(t, fragStore.Create(storyID, target))

	sched.Trigger(storyID, &fragment.Fragment{ID: "pr-1"})

	waitFor(t, time.Second, func() bool {
		f, err := fragStore.Get(storyID, "pr-target")
		return err == nil && f.Meta[fragment.MetaAnnotations] != nil
	})

	updated, err := fragStore.Get(storyID, "pr-target")
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Version, "annotation-only writes must not bump version")
	annotations, ok := updated.Meta[fragment.MetaAnnotations].([]any)
	require.True(t, ok)
	require.Len(t, annotations, 1)
	assert.Equal(t, "consider foreshadowing here", annotations[0])
}

func TestScheduler_DebounceResetsOnReTrigger(t *testing.T) {
	analyzer := &countingAnalyzer{}
	sched, _, storyStore, storyID := newTestScheduler(t, analyzer)

	meta, err := storyStore.Get(storyID)
	require.NoError(t, err)
	meta.Settings.LibrarianDebounceSecond = 1
	require.NoError(t, storyStore.Update(meta))

	sched.Trigger(storyID, &fragment.Fragment{ID: "pr-1"})
	time.Sleep(300 * time.Millisecond)
	sched.Trigger(storyID, &fragment.Fragment{ID: "pr-2"}) // resets the 1s timer

	time.Sleep(900 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&analyzer.calls), "re-trigger within the debounce window resets the timer")

	waitFor(t, 2*time.Second, func() bool { return atomic.LoadInt32(&analyzer.calls) == 1 })
}

func TestScheduler_RunNowRunsSynchronouslyWithoutWaitingOutDebounce(t *testing.T) {
	analyzer := &countingAnalyzer{output: AnalyzerOutput{Summary: "instant"}}
	sched, _, storyStore, storyID := newTestScheduler(t, analyzer)

	meta, err := storyStore.Get(storyID)
	require.NoError(t, err)
	meta.Settings.LibrarianDebounceSecond = 30 // would never fire in this test's lifetime via Trigger
	require.NoError(t, storyStore.Update(meta))

	sched.RunNow(storyID)

	assert.Equal(t, int32(1), atomic.LoadInt32(&analyzer.calls))
	state, err := sched.State(storyID)
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, state.RunStatus)
	require.Len(t, state.AnalysisIDs, 1)
}

func TestScheduler_StateReflectsErrorAfterFailedAnalysis(t *testing.T) {
	failErr := assert.AnError
	analyzer := &countingAnalyzer{failErr: failErr}
	sched, _, _, storyID := newTestScheduler(t, analyzer)

	sched.RunNow(storyID)

	state, err := sched.State(storyID)
	require.NoError(t, err)
	assert.Equal(t, StatusError, state.RunStatus)
	assert.Equal(t, failErr.Error(), state.LastError)
}
