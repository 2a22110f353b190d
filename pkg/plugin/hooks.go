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

// Package plugin defines the generation-pipeline extension points: four
// hook signatures run at fixed points in every generate call, in
// plugin-registration order. Plugins receive read-only snapshots and
// return replacements rather than mutating in place, so ordering semantics
// stay explicit.
package plugin

import (
	"sync"

	"github.com/inkloom/inkloom-core/pkg/contextbuilder"
	"github.com/inkloom/inkloom-core/pkg/fragment"
	"github.com/inkloom/inkloom-core/pkg/llm"
	"github.com/inkloom/inkloom-core/pkg/tool/fragmenttool"
)

// GenerationResult is the {text, fragmentId?, toolCalls} shape afterGeneration
// hooks may rewrite.
type GenerationResult struct {
	Text       string
	FragmentID string
	ToolCalls  []llm.ToolCall
}

// Hooks is the interface a plugin (in-process or adapted from an
// out-of-process client by pluginhost) implements. Any subset of methods
// may be a no-op passthrough.
type Hooks interface {
	Name() string
	BeforeContext(state *contextbuilder.State) (*contextbuilder.State, error)
	BeforeGeneration(messages []llm.Message) ([]llm.Message, error)
	AfterGeneration(result GenerationResult) (GenerationResult, error)
	AfterSave(f *fragment.Fragment, storyID string) error

	// Tools returns the tool definitions this plugin contributes to a
	// generation call's toolset (§4.6 step 3). Most hooks return nil.
	Tools() []llm.ToolDefinition

	// InvokeTool executes one of this plugin's own Tools() by name.
	// Never called for a name Tools() didn't advertise.
	InvokeTool(name string, args map[string]any) (map[string]any, error)
}

// Registry holds registered Hooks in registration order. Hook execution
// order is a core invariant (spec §4.8), so this keeps an ordered slice
// rather than a map.
type Registry struct {
	mu    sync.Mutex
	hooks []Hooks
}

// NewRegistry creates an empty, ordered hook registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends h to the registration order.
func (r *Registry) Register(h Hooks) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, h)
}

// Enabled returns the registered hooks whose Name() is in names, in
// registration order, for a story's settings.enabledPlugins list.
func (r *Registry) Enabled(names []string) []Hooks {
	r.mu.Lock()
	defer r.mu.Unlock()

	allowed := make(map[string]bool, len(names))
	for _, n := range names {
		allowed[n] = true
	}
	out := make([]Hooks, 0, len(r.hooks))
	for _, h := range r.hooks {
		if allowed[h.Name()] {
			out = append(out, h)
		}
	}
	return out
}

// RunBeforeContext runs beforeContext across hooks in order. An error
// aborts immediately, per §4.8.
func RunBeforeContext(hooks []Hooks, state *contextbuilder.State) (*contextbuilder.State, error) {
	for _, h := range hooks {
		next, err := h.BeforeContext(state)
		if err != nil {
			return nil, err
		}
		state = next
	}
	return state, nil
}

// RunBeforeGeneration runs beforeGeneration across hooks in order. An
// error aborts immediately, per §4.8.
func RunBeforeGeneration(hooks []Hooks, messages []llm.Message) ([]llm.Message, error) {
	for _, h := range hooks {
		next, err := h.BeforeGeneration(messages)
		if err != nil {
			return nil, err
		}
		messages = next
	}
	return messages, nil
}

// RunAfterGeneration runs afterGeneration across hooks in order. Per §4.8 a
// hook error here is logged and swallowed by the caller (the generation
// pipeline), not returned to the stream as a failure; RunAfterGeneration
// itself still reports errors so the caller can decide how to log them.
func RunAfterGeneration(hooks []Hooks, result GenerationResult, onError func(hookName string, err error)) GenerationResult {
	for _, h := range hooks {
		next, err := h.AfterGeneration(result)
		if err != nil {
			if onError != nil {
				onError(h.Name(), err)
			}
			continue
		}
		result = next
	}
	return result
}

// RunAfterSave runs afterSave across hooks in order, fire-and-forget: every
// hook runs regardless of a prior hook's error, and errors are reported
// through onError rather than aborting.
func RunAfterSave(hooks []Hooks, f *fragment.Fragment, storyID string, onError func(hookName string, err error)) {
	for _, h := range hooks {
		if err := h.AfterSave(f, storyID); err != nil && onError != nil {
			onError(h.Name(), err)
		}
	}
}

// ToolSource pairs a tool definition with the hook that serves it. Hook is
// nil for a definition that came from the fixed fragment toolset.
type ToolSource struct {
	Definition llm.ToolDefinition
	Hook       Hooks
}

// MergeTools merges the fixed fragment tool definitions with every enabled
// hook's contributed tools, in registration order (§4.6 step 3). A plugin
// tool can shadow a fragment tool, or an earlier plugin's tool, of the same
// name; a collision resolves last-registered-wins and is reported through
// onShadow.
func MergeTools(hooks []Hooks, base []llm.ToolDefinition, onShadow func(toolName, pluginName string)) []ToolSource {
	merged := make([]ToolSource, len(base))
	index := make(map[string]int, len(base))
	for i, d := range base {
		merged[i] = ToolSource{Definition: d}
		index[d.Name] = i
	}
	for _, h := range hooks {
		for _, d := range h.Tools() {
			if i, ok := index[d.Name]; ok {
				if onShadow != nil {
					onShadow(d.Name, h.Name())
				}
				merged[i] = ToolSource{Definition: d, Hook: h}
				continue
			}
			index[d.Name] = len(merged)
			merged = append(merged, ToolSource{Definition: d, Hook: h})
		}
	}
	return merged
}

// ToolDefinitions extracts the wire definitions from a merged tool list, for
// advertising to a provider.
func ToolDefinitions(sources []ToolSource) []llm.ToolDefinition {
	out := make([]llm.ToolDefinition, 0, len(sources))
	for _, s := range sources {
		out = append(out, s.Definition)
	}
	return out
}

// DispatchTool routes call to the hook that shadowed it in sources, or
// falls back to the fixed fragment toolset otherwise.
func DispatchTool(sources []ToolSource, fragTools []fragmenttool.Tool, scope *fragmenttool.Scope, call llm.ToolCall) (map[string]any, error) {
	for _, s := range sources {
		if s.Definition.Name == call.Name && s.Hook != nil {
			return s.Hook.InvokeTool(call.Name, call.Arguments)
		}
	}
	return fragmenttool.Dispatch(fragTools, scope, call)
}
