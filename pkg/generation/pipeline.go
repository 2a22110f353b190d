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

// Package generation drives one generate/regenerate/refine call end to
// end: context build, hook points, the LLM stream, the tee to caller and
// accumulator, prose-chain update, and generation-log write.
package generation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/inkloom/inkloom-core/pkg/association"
	"github.com/inkloom/inkloom-core/pkg/contextbuilder"
	"github.com/inkloom/inkloom-core/pkg/coreerr"
	"github.com/inkloom/inkloom-core/pkg/fragment"
	"github.com/inkloom/inkloom-core/pkg/genlog"
	"github.com/inkloom/inkloom-core/pkg/idgen"
	"github.com/inkloom/inkloom-core/pkg/llm"
	"github.com/inkloom/inkloom-core/pkg/observability"
	"github.com/inkloom/inkloom-core/pkg/plugin"
	"github.com/inkloom/inkloom-core/pkg/prosechain"
	"github.com/inkloom/inkloom-core/pkg/story"
	"github.com/inkloom/inkloom-core/pkg/storylock"
	"github.com/inkloom/inkloom-core/pkg/tool/fragmenttool"
)

// Mode selects how a generate call relates to an existing prose fragment.
type Mode string

const (
	ModeGenerate   Mode = "generate"
	ModeRegenerate Mode = "regenerate"
	ModeRefine     Mode = "refine"
)

// Request is one call to Pipeline.Generate.
type Request struct {
	StoryID    string
	BranchID   string
	Input      string
	Mode       Mode
	FragmentID string // required for regenerate|refine
	SaveResult bool
}

// ProviderResolver resolves the {providerID, model} pair to use for a
// story, honoring the story/default/per-agent override chain (§4.6 step 5).
type ProviderResolver interface {
	Resolve(settings story.Settings) (providerID, model string, provider llm.Provider, err error)
}

// Librarian is the subset of the librarian scheduler the pipeline
// fire-and-forgets a trigger to after every save.
type Librarian interface {
	Trigger(storyID string, f *fragment.Fragment)
}

// Pipeline wires every component the generation pipeline depends on.
type Pipeline struct {
	Context      *contextbuilder.Builder
	Fragments    *fragment.Store
	Associations *association.Store // nil disables addTag/removeTag/addRef
	ProseChain   *prosechain.Store
	Stories      *story.Store
	GenLog       *genlog.Store
	Hooks        *plugin.Registry
	Providers    ProviderResolver
	Librarian    Librarian
	Recorder     observability.Recorder // nil is treated as observability.NoopRecorder{}
	Logger       *slog.Logger
	Locks        *storylock.Registry // shared with pkg/librarian; nil runs every mutation unlocked
}

func (p *Pipeline) recorder() observability.Recorder {
	if p.Recorder == nil {
		return observability.NoopRecorder{}
	}
	return p.Recorder
}

// StreamResult is returned by Generate: Events is the tee'd event channel
// the caller drains (closed when the stream ends); Done resolves once the
// accumulate-and-save branch has finished, independent of caller
// cancellation.
type StreamResult struct {
	Events <-chan llm.Event
	Done   <-chan struct{}
}

// Generate runs one full generation call per §4.6.
func (p *Pipeline) Generate(ctx context.Context, req Request) (*StreamResult, error) {
	const op = "generation.Generate"
	if req.Input == "" {
		return nil, coreerr.New(op, coreerr.InvalidArgument, "input must not be empty")
	}

	var source *fragment.Fragment
	if req.Mode == ModeRegenerate || req.Mode == ModeRefine {
		if req.FragmentID == "" {
			return nil, coreerr.New(op, coreerr.InvalidArgument, "fragmentId is required for mode %s", req.Mode)
		}
		f, err := p.Fragments.Get(req.StoryID, req.FragmentID)
		if err != nil {
			return nil, err
		}
		source = f
	}

	effectiveInput := req.Input
	if req.Mode == ModeRefine {
		effectiveInput = fmt.Sprintf("Existing passage:\n%s\n\nInstruction: %s", source.Content, req.Input)
	}

	excludeID := ""
	if source != nil {
		excludeID = source.ID
	}
	state, err := p.Context.Build(req.StoryID, req.BranchID, effectiveInput, contextbuilder.BuildOptions{ExcludeFragmentID: excludeID})
	if err != nil {
		return nil, err
	}

	hooks := p.Hooks.Enabled(state.Story.Settings.EnabledPlugins)

	state, err = plugin.RunBeforeContext(hooks, state)
	if err != nil {
		return nil, err
	}

	scope := &fragmenttool.Scope{StoryID: req.StoryID, Fragments: p.Fragments, Associations: p.Associations}
	fragTools := fragmenttool.Registry()
	toolSources := plugin.MergeTools(hooks, fragmenttool.Definitions(fragTools), func(toolName, pluginName string) {
		p.logf("plugin %s shadows tool %q", pluginName, toolName)
	})

	// The Available Tools block lists plugin-contributed tools only; the
	// provider still receives the full merged toolset below.
	var pluginTools []llm.ToolDefinition
	for _, s := range toolSources {
		if s.Hook != nil {
			pluginTools = append(pluginTools, s.Definition)
		}
	}
	messages := contextbuilder.Assemble(state, contextbuilder.AssembleOptions{
		ExtraTools: pluginTools,
	})
	messages, err = plugin.RunBeforeGeneration(hooks, messages)
	if err != nil {
		return nil, err
	}

	providerID, model, provider, err := p.Providers.Resolve(state.Story.Settings)
	if err != nil {
		return nil, err
	}

	maxSteps := state.Story.Settings.MaxSteps
	// With SaveResult the provider stream does not inherit the caller's
	// cancellation, so the accumulate-and-save side always sees the whole
	// stream; tee alone stops forwarding to the caller once ctx is done.
	streamCtx := ctx
	if req.SaveResult {
		streamCtx = context.WithoutCancel(ctx)
	}
	events, err := provider.Stream(streamCtx, llm.StreamRequest{
		Model:      model,
		Messages:   messages,
		Tools:      plugin.ToolDefinitions(toolSources),
		ToolChoice: llm.ToolChoiceAuto,
	})
	if err != nil {
		return nil, coreerr.Wrap(op, coreerr.Unavailable, err, "open provider stream")
	}

	callerCh := make(chan llm.Event)
	done := make(chan struct{})

	if !req.SaveResult {
		go func() {
			defer close(callerCh)
			for ev := range events {
				if ev.Type == llm.EventText || ev.Type == llm.EventError || ev.Type == llm.EventDone {
					select {
					case callerCh <- ev:
					case <-ctx.Done():
						return
					}
				}
			}
		}()
		close(done)
		return &StreamResult{Events: callerCh, Done: done}, nil
	}

	accumCh := make(chan llm.Event, 64)
	go tee(ctx, events, callerCh, accumCh)
	go func() {
		defer close(done)
		p.accumulateAndSave(context.Background(), req, source, hooks, scope, fragTools, toolSources, messages, providerID, model, maxSteps, accumCh)
	}()

	return &StreamResult{Events: callerCh, Done: done}, nil
}

// tee is a single producer reading events once and fanning it out to two
// consumers: the caller's channel (which respects ctx cancellation) and the
// accumulator's channel (which is drained to completion regardless of
// caller cancellation, per §5's cancellation semantics).
func tee(ctx context.Context, in <-chan llm.Event, callerCh, accumCh chan<- llm.Event) {
	defer close(callerCh)
	defer close(accumCh)
	callerDone := false
	for ev := range in {
		if !callerDone {
			select {
			case callerCh <- ev:
			case <-ctx.Done():
				callerDone = true
			}
		}
		accumCh <- ev
	}
}

func (p *Pipeline) accumulateAndSave(
	ctx context.Context,
	req Request,
	source *fragment.Fragment,
	hooks []plugin.Hooks,
	scope *fragmenttool.Scope,
	fragTools []fragmenttool.Tool,
	toolSources []plugin.ToolSource,
	messages []llm.Message,
	providerID string,
	model string,
	maxSteps int,
	events <-chan llm.Event,
) {
	start := time.Now()
	var text string
	var toolCalls []llm.ToolCall
	var finishReason string
	stepCount := 0
	var streamErr error

	for ev := range events {
		switch ev.Type {
		case llm.EventText:
			text += ev.Text
		case llm.EventToolCall:
			if ev.ToolCall != nil {
				toolCalls = append(toolCalls, *ev.ToolCall)
				stepCount++
				toolStart := time.Now()
				var toolErr error
				_ = p.Locks.WithLock(req.StoryID, func() error {
					_, toolErr = plugin.DispatchTool(toolSources, fragTools, scope, *ev.ToolCall)
					return nil
				})
				p.recorder().RecordToolExecution(ev.ToolCall.Name, time.Since(toolStart), toolErr)
				if toolErr != nil {
					p.logf("tool call %s failed: %v", ev.ToolCall.Name, toolErr)
				}
			}
		case llm.EventError:
			streamErr = ev.Err
		case llm.EventDone:
			finishReason = ev.FinishReason
		}
	}

	if streamErr != nil {
		p.recorder().RecordGeneration(string(req.Mode), providerID, model, time.Since(start), 0, 0, streamErr)
		p.logf("generation stream error for story %s: %v", req.StoryID, streamErr)
		return
	}

	result := plugin.GenerationResult{Text: text, ToolCalls: toolCalls}
	if source != nil {
		result.FragmentID = source.ID
	}
	result = plugin.RunAfterGeneration(hooks, result, func(name string, err error) {
		p.logf("afterGeneration hook %s failed: %v", name, err)
	})

	// Fragment creation and the prose-chain's findSectionIndex->addVariation
	// step run as one critical section under the story lock, per §5: two
	// concurrent regenerations of the same section must not both append a
	// new section.
	f := p.buildFragment(req, source, result)
	var createErr, chainErr error
	_ = p.Locks.WithLock(req.StoryID, func() error {
		if createErr = p.Fragments.Create(req.StoryID, f); createErr != nil {
			return nil
		}
		chainErr = p.updateProseChain(req, source, f)
		return nil
	})
	if createErr != nil {
		p.recorder().RecordGeneration(string(req.Mode), providerID, model, time.Since(start), 0, 0, createErr)
		p.logf("persist generated fragment failed: %v", createErr)
		return
	}
	p.recorder().RecordFragmentWrite(req.StoryID, string(f.Type))
	if chainErr != nil {
		p.logf("prose chain update failed: %v", chainErr)
	}

	plugin.RunAfterSave(hooks, f, req.StoryID, func(name string, err error) {
		p.logf("afterSave hook %s failed: %v", name, err)
	})

	if p.Librarian != nil {
		p.Librarian.Trigger(req.StoryID, f)
	}

	stepsExceeded := stepCount >= maxSteps && finishReason != "stop"
	p.recorder().RecordGeneration(string(req.Mode), providerID, model, time.Since(start), 0, 0, nil)
	if _, err := p.GenLog.Append(req.StoryID, genlog.Entry{
		Input:         req.Input,
		Messages:      messages,
		ToolCalls:     toolCalls,
		Text:          result.Text,
		FragmentID:    f.ID,
		ModelID:       model,
		Duration:      time.Since(start),
		StepCount:     stepCount,
		FinishReason:  finishReason,
		StepsExceeded: stepsExceeded,
	}); err != nil {
		p.logf("generation log write failed: %v", err)
	}
}

func (p *Pipeline) buildFragment(req Request, source *fragment.Fragment, result plugin.GenerationResult) *fragment.Fragment {
	f := &fragment.Fragment{
		ID:      idgen.FragmentID(idgen.TypeProse, ""),
		Type:    idgen.TypeProse,
		Content: result.Text,
	}
	if source != nil {
		f.Name = source.Name
		f.Tags = append([]string{}, source.Tags...)
		f.Refs = append([]string{}, source.Refs...)
		f.Sticky = source.Sticky
		f.Placement = source.Placement
		f.Order = source.Order
		f.Meta = cloneMeta(source.Meta)
		f.Meta[fragment.MetaGeneratedFrom] = req.Input
		f.Meta[fragment.MetaGenerationMode] = string(req.Mode)
		f.Meta[fragment.MetaPreviousFragmentID] = source.ID
		f.Meta[fragment.MetaVariationOf] = source.ID
	} else {
		f.Name = "Untitled passage"
		f.Tags = []string{}
		f.Refs = []string{}
		f.Meta = map[string]any{
			fragment.MetaGeneratedFrom:  req.Input,
			fragment.MetaGenerationMode: string(req.Mode),
		}
	}
	return f
}

func cloneMeta(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+4)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// updateProseChain implements §4.6 step 8c: regenerate/refine extends the
// source's section; a fresh generate always starts a new one.
func (p *Pipeline) updateProseChain(req Request, source *fragment.Fragment, newFragment *fragment.Fragment) error {
	if source == nil {
		return p.ProseChain.AddSection(req.StoryID, req.BranchID, newFragment.ID)
	}
	idx, err := p.ProseChain.FindSectionIndex(req.StoryID, req.BranchID, source.ID)
	if err != nil {
		return err
	}
	if idx < 0 {
		return p.ProseChain.AddSection(req.StoryID, req.BranchID, newFragment.ID)
	}
	return p.ProseChain.AddVariation(req.StoryID, req.BranchID, idx, newFragment.ID)
}

func (p *Pipeline) logf(format string, args ...any) {
	if p.Logger != nil {
		p.Logger.Error(fmt.Sprintf(format, args...))
	}
}
