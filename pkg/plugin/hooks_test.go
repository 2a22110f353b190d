package plugin

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkloom/inkloom-core/pkg/contextbuilder"
	"github.com/inkloom/inkloom-core/pkg/fragment"
	"github.com/inkloom/inkloom-core/pkg/llm"
)

// recordingHooks is a no-op Hooks implementation that records invocations,
// and can be configured to fail a specific phase.
type recordingHooks struct {
	name       string
	calls      *[]string
	failPhase  string
	appendText string
	tools      []llm.ToolDefinition
	invokeTool func(name string, args map[string]any) (map[string]any, error)
}

func (h *recordingHooks) Name() string { return h.name }

func (h *recordingHooks) BeforeContext(state *contextbuilder.State) (*contextbuilder.State, error) {
	*h.calls = append(*h.calls, h.name+":beforeContext")
	if h.failPhase == "beforeContext" {
		return nil, errors.New("boom")
	}
	return state, nil
}

func (h *recordingHooks) BeforeGeneration(messages []llm.Message) ([]llm.Message, error) {
	*h.calls = append(*h.calls, h.name+":beforeGeneration")
	if h.failPhase == "beforeGeneration" {
		return nil, errors.New("boom")
	}
	return messages, nil
}

func (h *recordingHooks) AfterGeneration(result GenerationResult) (GenerationResult, error) {
	*h.calls = append(*h.calls, h.name+":afterGeneration")
	if h.failPhase == "afterGeneration" {
		return GenerationResult{}, errors.New("boom")
	}
	result.Text += h.appendText
	return result, nil
}

func (h *recordingHooks) AfterSave(f *fragment.Fragment, storyID string) error {
	*h.calls = append(*h.calls, h.name+":afterSave")
	if h.failPhase == "afterSave" {
		return errors.New("boom")
	}
	return nil
}

func (h *recordingHooks) Tools() []llm.ToolDefinition { return h.tools }

func (h *recordingHooks) InvokeTool(name string, args map[string]any) (map[string]any, error) {
	if h.invokeTool != nil {
		return h.invokeTool(name, args)
	}
	return nil, errors.New("recordingHooks: no tool named " + name)
}

func TestRegistry_EnabledFiltersByNamePreservingOrder(t *testing.T) {
	reg := NewRegistry()
	var calls []string
	reg.Register(&recordingHooks{name: "b", calls: &calls})
	reg.Register(&recordingHooks{name: "a", calls: &calls})

	enabled := reg.Enabled([]string{"a", "b"})
	require.Len(t, enabled, 2)
	assert.Equal(t, "b", enabled[0].Name(), "registration order is preserved, not sorted")
	assert.Equal(t, "a", enabled[1].Name())
}

func TestRunBeforeContext_AbortsOnError(t *testing.T) {
	var calls []string
	hooks := []Hooks{
		&recordingHooks{name: "first", calls: &calls},
		&recordingHooks{name: "second", calls: &calls, failPhase: "beforeContext"},
		&recordingHooks{name: "third", calls: &calls},
	}

	_, err := RunBeforeContext(hooks, &contextbuilder.State{})
	require.Error(t, err)
	assert.Equal(t, []string{"first:beforeContext", "second:beforeContext"}, calls, "a failing hook aborts before later hooks run")
}

func TestRunAfterGeneration_SwallowsErrorsAndContinues(t *testing.T) {
	var calls []string
	var loggedErrors []string
	hooks := []Hooks{
		&recordingHooks{name: "first", calls: &calls, appendText: "-first"},
		&recordingHooks{name: "second", calls: &calls, failPhase: "afterGeneration"},
		&recordingHooks{name: "third", calls: &calls, appendText: "-third"},
	}

	result := RunAfterGeneration(hooks, GenerationResult{Text: "base"}, func(name string, err error) {
		loggedErrors = append(loggedErrors, name)
	})

	assert.Equal(t, "base-first-third", result.Text, "a failing hook's rewrite is discarded but later hooks still run")
	assert.Equal(t, []string{"second"}, loggedErrors)
}

func TestRunAfterSave_RunsAllHooksEvenAfterAnError(t *testing.T) {
	var calls []string
	hooks := []Hooks{
		&recordingHooks{name: "first", calls: &calls, failPhase: "afterSave"},
		&recordingHooks{name: "second", calls: &calls},
	}

	var loggedErrors []string
	RunAfterSave(hooks, &fragment.Fragment{ID: "pr-1"}, "story-1", func(name string, err error) {
		loggedErrors = append(loggedErrors, name)
	})

	assert.Equal(t, []string{"first:afterSave", "second:afterSave"}, calls)
	assert.Equal(t, []string{"first"}, loggedErrors)
}

func TestMergeTools_PluginShadowsFragmentToolLastRegisteredWins(t *testing.T) {
	base := []llm.ToolDefinition{{Name: "addTag", Description: "fixed"}, {Name: "getFragment", Description: "fixed"}}
	first := &recordingHooks{name: "first", calls: &[]string{}, tools: []llm.ToolDefinition{{Name: "addTag", Description: "plugin-1"}}}
	second := &recordingHooks{name: "second", calls: &[]string{}, tools: []llm.ToolDefinition{{Name: "addTag", Description: "plugin-2"}}}

	var shadows [][2]string
	merged := MergeTools([]Hooks{first, second}, base, func(toolName, pluginName string) {
		shadows = append(shadows, [2]string{toolName, pluginName})
	})

	require.Len(t, merged, 2, "shadowing a name reuses its slot rather than appending")
	assert.Equal(t, "plugin-2", merged[0].Definition.Description, "the last-registered plugin wins the collision")
	assert.Equal(t, second, merged[0].Hook)
	assert.Equal(t, "fixed", merged[1].Definition.Description)
	assert.Nil(t, merged[1].Hook)
	assert.Equal(t, [][2]string{{"addTag", "first"}, {"addTag", "second"}}, shadows, "every collision is reported, including plugin-over-plugin")
}

func TestMergeTools_NewPluginToolIsAppended(t *testing.T) {
	base := []llm.ToolDefinition{{Name: "addTag"}}
	h := &recordingHooks{name: "summarizer", calls: &[]string{}, tools: []llm.ToolDefinition{{Name: "summarize"}}}

	merged := MergeTools([]Hooks{h}, base, nil)

	require.Len(t, merged, 2)
	assert.Equal(t, "summarize", merged[1].Definition.Name)
	assert.Equal(t, h, merged[1].Hook)
}

func TestDispatchTool_RoutesShadowedCallToHookAndFallsBackOtherwise(t *testing.T) {
	h := &recordingHooks{name: "summarizer", calls: &[]string{}, invokeTool: func(name string, args map[string]any) (map[string]any, error) {
		return map[string]any{"name": name}, nil
	}}
	sources := []ToolSource{
		{Definition: llm.ToolDefinition{Name: "summarize"}, Hook: h},
		{Definition: llm.ToolDefinition{Name: "getFragment"}},
	}

	out, err := DispatchTool(sources, nil, nil, llm.ToolCall{Name: "summarize"})
	require.NoError(t, err)
	assert.Equal(t, "summarize", out["name"])

	_, err = DispatchTool(sources, nil, nil, llm.ToolCall{Name: "getFragment"})
	require.Error(t, err, "an unshadowed name falls through to fragmenttool.Dispatch, which reports it as unknown against a nil tool list")
}
