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

// Package fragmenttool registers the fixed, LLM-callable fragment toolset:
// search/get/create/update/patch/addTag/removeTag/addRef. Every mutating
// tool passes through the write guard enforcing meta.locked and
// frozenSections.
package fragmenttool

import (
	"context"
	"strings"

	"github.com/inkloom/inkloom-core/pkg/association"
	"github.com/inkloom/inkloom-core/pkg/coreerr"
	"github.com/inkloom/inkloom-core/pkg/fragment"
	"github.com/inkloom/inkloom-core/pkg/idgen"
	"github.com/inkloom/inkloom-core/pkg/llm"
)

// Indexer refreshes a fragment's vector-shortlist entry after a write.
// Satisfied by *vectorindex.Index; kept as a narrow local interface so
// this package doesn't have to import vectorindex just to accept it.
type Indexer interface {
	Upsert(ctx context.Context, storyID string, f *fragment.Fragment) error
}

// Scope binds the fixed toolset to one story's fragment store and
// association index for the duration of a single generation call.
type Scope struct {
	StoryID      string
	Fragments    *fragment.Store
	Associations *association.Store

	// VectorIndex optionally reindexes created/updated/patched fragments
	// for similarity-ranked shortlisting. Nil disables indexing entirely;
	// a failed reindex is swallowed (best-effort, never blocks a tool
	// call) since the shortlist's similarity factor is additive and the
	// tool's own write already succeeded.
	VectorIndex Indexer
}

func (s *Scope) reindex(f *fragment.Fragment) {
	if s.VectorIndex == nil || f == nil {
		return
	}
	_ = s.VectorIndex.Upsert(context.Background(), s.StoryID, f)
}

// Tool is a single callable fragment tool: its wire definition plus the
// handler that executes it against a Scope.
type Tool struct {
	Definition llm.ToolDefinition
	Handler    func(scope *Scope, args map[string]any) (map[string]any, error)
}

// Registry returns the fixed fragment toolset, in the order §4.7 lists them.
func Registry() []Tool {
	return []Tool{
		searchByTagTool(),
		searchByTypeTool(),
		getFragmentTool(),
		createFragmentTool(),
		updateFragmentTool(),
		patchFragmentTool(),
		addTagTool(),
		removeTagTool(),
		addRefTool(),
	}
}

// Definitions extracts the wire {name, description, inputSchema} triples
// for advertising to a provider.
func Definitions(tools []Tool) []llm.ToolDefinition {
	out := make([]llm.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		out = append(out, t.Definition)
	}
	return out
}

// Dispatch finds and invokes the named tool. A missing tool is reported as
// an InvalidArgument core error.
func Dispatch(tools []Tool, scope *Scope, call llm.ToolCall) (map[string]any, error) {
	for _, t := range tools {
		if t.Definition.Name == call.Name {
			return t.Handler(scope, call.Arguments)
		}
	}
	return nil, coreerr.New("fragmenttool.Dispatch", coreerr.InvalidArgument, "unknown tool %q", call.Name)
}

func argString(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func searchByTagTool() Tool {
	return Tool{
		Definition: llm.ToolDefinition{
			Name:        "searchFragmentsByTag",
			Description: "Find fragments carrying a given tag.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"tag": map[string]any{"type": "string"}},
				"required":   []string{"tag"},
			},
		},
		Handler: func(scope *Scope, args map[string]any) (map[string]any, error) {
			tag := argString(args, "tag")
			all, err := scope.Fragments.List(scope.StoryID, "", fragment.ListOptions{})
			if err != nil {
				return nil, err
			}
			var matches []string
			for _, f := range all {
				for _, t := range f.Tags {
					if strings.EqualFold(t, tag) {
						matches = append(matches, f.ID)
						break
					}
				}
			}
			return map[string]any{"fragmentIds": matches}, nil
		},
	}
}

func searchByTypeTool() Tool {
	return Tool{
		Definition: llm.ToolDefinition{
			Name:        "searchFragmentsByType",
			Description: "List fragment ids of a given type.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"type": map[string]any{"type": "string"}},
				"required":   []string{"type"},
			},
		},
		Handler: func(scope *Scope, args map[string]any) (map[string]any, error) {
			typeFilter := idgen.FragmentType(argString(args, "type"))
			list, err := scope.Fragments.List(scope.StoryID, typeFilter, fragment.ListOptions{})
			if err != nil {
				return nil, err
			}
			ids := make([]string, 0, len(list))
			for _, f := range list {
				ids = append(ids, f.ID)
			}
			return map[string]any{"fragmentIds": ids}, nil
		},
	}
}

func getFragmentTool() Tool {
	return Tool{
		Definition: llm.ToolDefinition{
			Name:        "getFragment",
			Description: "Fetch a fragment by id.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"id": map[string]any{"type": "string"}},
				"required":   []string{"id"},
			},
		},
		Handler: func(scope *Scope, args map[string]any) (map[string]any, error) {
			f, err := scope.Fragments.Get(scope.StoryID, argString(args, "id"))
			if err != nil {
				return nil, err
			}
			return fragmentResult(f), nil
		},
	}
}

func createFragmentTool() Tool {
	return Tool{
		Definition: llm.ToolDefinition{
			Name:        "createFragment",
			Description: "Create a new fragment.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id":      map[string]any{"type": "string"},
					"type":    map[string]any{"type": "string"},
					"name":    map[string]any{"type": "string"},
					"content": map[string]any{"type": "string"},
				},
				"required": []string{"id", "type", "name"},
			},
		},
		Handler: func(scope *Scope, args map[string]any) (map[string]any, error) {
			f := &fragment.Fragment{
				ID:      argString(args, "id"),
				Type:    idgen.FragmentType(argString(args, "type")),
				Name:    argString(args, "name"),
				Content: argString(args, "content"),
			}
			if err := scope.Fragments.Create(scope.StoryID, f); err != nil {
				return nil, err
			}
			scope.reindex(f)
			return fragmentResult(f), nil
		},
	}
}

func updateFragmentTool() Tool {
	return Tool{
		Definition: llm.ToolDefinition{
			Name:        "updateFragment",
			Description: "Replace a fragment's name, description, or content, bumping its version if changed.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id":          map[string]any{"type": "string"},
					"name":        map[string]any{"type": "string"},
					"description": map[string]any{"type": "string"},
					"content":     map[string]any{"type": "string"},
					"reason":      map[string]any{"type": "string"},
				},
				"required": []string{"id"},
			},
		},
		Handler: func(scope *Scope, args map[string]any) (map[string]any, error) {
			edit := fragment.Edit{Reason: argString(args, "reason")}
			if v, ok := args["name"].(string); ok {
				edit.Name = &v
			}
			if v, ok := args["description"].(string); ok {
				edit.Description = &v
			}
			if v, ok := args["content"].(string); ok {
				edit.Content = &v
			}
			f, err := scope.Fragments.UpdateVersioned(scope.StoryID, argString(args, "id"), edit)
			if err != nil {
				return nil, err
			}
			scope.reindex(f)
			return fragmentResult(f), nil
		},
	}
}

func patchFragmentTool() Tool {
	return Tool{
		Definition: llm.ToolDefinition{
			Name:        "patchFragment",
			Description: "Replace the first occurrence of oldText with newText in a fragment's content.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id":      map[string]any{"type": "string"},
					"oldText": map[string]any{"type": "string"},
					"newText": map[string]any{"type": "string"},
				},
				"required": []string{"id", "oldText", "newText"},
			},
		},
		Handler: func(scope *Scope, args map[string]any) (map[string]any, error) {
			const op = "fragmenttool.patchFragment"
			id := argString(args, "id")
			oldText := argString(args, "oldText")
			newText := argString(args, "newText")

			current, err := scope.Fragments.Get(scope.StoryID, id)
			if err != nil {
				return nil, err
			}
			if !strings.Contains(current.Content, oldText) {
				return nil, coreerr.New(op, coreerr.InvalidArgument, "oldText not found in fragment %s", id)
			}
			patched := strings.Replace(current.Content, oldText, newText, 1)
			f, err := scope.Fragments.UpdateVersioned(scope.StoryID, id, fragment.Edit{Content: &patched, Reason: "patch"})
			if err != nil {
				return nil, err
			}
			scope.reindex(f)
			return fragmentResult(f), nil
		},
	}
}

func addTagTool() Tool {
	return Tool{
		Definition: llm.ToolDefinition{
			Name:        "addTag",
			Description: "Add a tag to a fragment.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id":  map[string]any{"type": "string"},
					"tag": map[string]any{"type": "string"},
				},
				"required": []string{"id", "tag"},
			},
		},
		Handler: func(scope *Scope, args map[string]any) (map[string]any, error) {
			if scope.Associations == nil {
				return nil, coreerr.New("fragmenttool.addTag", coreerr.Internal, "no association store configured")
			}
			id := argString(args, "id")
			if err := scope.Associations.AddTag(scope.StoryID, id, argString(args, "tag")); err != nil {
				return nil, err
			}
			f, err := scope.Fragments.Get(scope.StoryID, id)
			if err != nil {
				return nil, err
			}
			return fragmentResult(f), nil
		},
	}
}

func removeTagTool() Tool {
	return Tool{
		Definition: llm.ToolDefinition{
			Name:        "removeTag",
			Description: "Remove a tag from a fragment.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id":  map[string]any{"type": "string"},
					"tag": map[string]any{"type": "string"},
				},
				"required": []string{"id", "tag"},
			},
		},
		Handler: func(scope *Scope, args map[string]any) (map[string]any, error) {
			if scope.Associations == nil {
				return nil, coreerr.New("fragmenttool.removeTag", coreerr.Internal, "no association store configured")
			}
			id := argString(args, "id")
			if err := scope.Associations.RemoveTag(scope.StoryID, id, argString(args, "tag")); err != nil {
				return nil, err
			}
			f, err := scope.Fragments.Get(scope.StoryID, id)
			if err != nil {
				return nil, err
			}
			return fragmentResult(f), nil
		},
	}
}

func addRefTool() Tool {
	return Tool{
		Definition: llm.ToolDefinition{
			Name:        "addRef",
			Description: "Add a reference from one fragment to another.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id":     map[string]any{"type": "string"},
					"target": map[string]any{"type": "string"},
				},
				"required": []string{"id", "target"},
			},
		},
		Handler: func(scope *Scope, args map[string]any) (map[string]any, error) {
			if scope.Associations == nil {
				return nil, coreerr.New("fragmenttool.addRef", coreerr.Internal, "no association store configured")
			}
			id := argString(args, "id")
			if err := scope.Associations.AddRef(scope.StoryID, id, argString(args, "target")); err != nil {
				return nil, err
			}
			f, err := scope.Fragments.Get(scope.StoryID, id)
			if err != nil {
				return nil, err
			}
			return fragmentResult(f), nil
		},
	}
}

func fragmentResult(f *fragment.Fragment) map[string]any {
	return map[string]any{
		"id":      f.ID,
		"type":    string(f.Type),
		"name":    f.Name,
		"content": f.Content,
		"tags":    f.Tags,
		"refs":    f.Refs,
		"version": f.Version,
	}
}
