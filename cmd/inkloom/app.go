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

package main

import (
	"fmt"
	"log/slog"

	"github.com/inkloom/inkloom-core/pkg/association"
	"github.com/inkloom/inkloom-core/pkg/branch"
	"github.com/inkloom/inkloom-core/pkg/contextbuilder"
	"github.com/inkloom/inkloom-core/pkg/fragment"
	"github.com/inkloom/inkloom-core/pkg/genlog"
	"github.com/inkloom/inkloom-core/pkg/generation"
	"github.com/inkloom/inkloom-core/pkg/librarian"
	"github.com/inkloom/inkloom-core/pkg/llm"
	"github.com/inkloom/inkloom-core/pkg/plugin"
	"github.com/inkloom/inkloom-core/pkg/prosechain"
	"github.com/inkloom/inkloom-core/pkg/story"
	"github.com/inkloom/inkloom-core/pkg/storylock"
)

// app wires one DATA_DIR's worth of stores plus a generation pipeline and
// librarian scheduler, both pointed at a mock LLM provider. It exists only
// for local smoke-testing: there is no HTTP transport here, no real
// provider, and no plugin host — every command drives the same in-process
// wiring the test suites use, against real on-disk storage.
type app struct {
	dataDir string

	Stories      *story.Store
	Branches     *branch.Manager
	ProseChain   *prosechain.Store
	Fragments    *fragment.Store
	Associations *association.Store
	GenLog       *genlog.Store
	Librarian    *librarian.Scheduler
	Pipeline     *generation.Pipeline
}

// mockResolver always resolves to the dev CLI's canned provider, ignoring
// story settings. A real deployment wires pkg/providerconfig's loader
// here instead.
type mockResolver struct {
	provider llm.Provider
}

func (r mockResolver) Resolve(story.Settings) (string, string, llm.Provider, error) {
	return "mock", "mock-model", r.provider, nil
}

// scriptedProvider replays a fixed "[mock] " text event followed by done,
// ignoring the request, so `generate` always has deterministic,
// inspectable output without calling out to a real model.
func scriptedProvider() *llm.MockProvider {
	return &llm.MockProvider{Script: []llm.Event{
		{Type: llm.EventText, Text: "[mock] "},
		{Type: llm.EventDone, FinishReason: "stop"},
	}}
}

// devAnalyzer is a stand-in librarian.Analyzer for librarian-run: it
// reports the chain length it was handed rather than producing real
// analysis, same role as the mock analyzers pkg/librarian's own tests use.
type devAnalyzer struct{}

func (devAnalyzer) Analyze(in librarian.AnalyzerInput) (librarian.AnalyzerOutput, error) {
	return librarian.AnalyzerOutput{
		Summary:    fmt.Sprintf("dev analysis: chain length %d", in.ChainLength),
		Directions: []string{"(mock) keep going"},
	}, nil
}

func newApp(dataDir string) *app {
	proseChain := prosechain.New(dataDir)
	branches := branch.New(dataDir, proseChain)
	fragments := fragment.New(dataDir, branches)
	proseChain.Fragments = fragments
	associations := association.New(dataDir, fragments)
	stories := story.New(dataDir)
	genLog := genlog.New(dataDir)

	ctxBuilder := &contextbuilder.Builder{
		Fragments:  fragments,
		ProseChain: proseChain,
		Stories:    stories,
	}

	locks := storylock.New()

	sched := librarian.NewScheduler(dataDir, fragments, proseChain, stories, branches, devAnalyzer{})
	sched.Logger = slog.Default()
	sched.Locks = locks

	pipeline := &generation.Pipeline{
		Context:      ctxBuilder,
		Fragments:    fragments,
		Associations: associations,
		ProseChain:   proseChain,
		Stories:      stories,
		GenLog:       genLog,
		Hooks:        plugin.NewRegistry(),
		Providers:    mockResolver{provider: scriptedProvider()},
		Librarian:    sched,
		Logger:       slog.Default(),
		Locks:        locks,
	}

	return &app{
		dataDir:      dataDir,
		Stories:      stories,
		Branches:     branches,
		ProseChain:   proseChain,
		Fragments:    fragments,
		Associations: associations,
		GenLog:       genLog,
		Librarian:    sched,
		Pipeline:     pipeline,
	}
}

// resolveStory returns storyID if non-empty, otherwise creates a new
// throwaway story under dataDir and returns its id.
func (a *app) resolveStory(storyID string) (string, error) {
	if storyID != "" {
		return storyID, nil
	}
	meta, err := a.Stories.Create("dev-story", "created by inkloom dev CLI")
	if err != nil {
		return "", err
	}
	fmt.Printf("created story %s\n", meta.ID)
	return meta.ID, nil
}
