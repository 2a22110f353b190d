// Package inkloom provides the write-path engine for a long-form
// AI-assisted writing workspace.
//
// inkloom-core owns the parts of the system that mutate and read a
// story's content: a versioned fragment store, a branch overlay for
// divergent storylines, a prose chain tracking each section's active
// variation, a context builder that assembles model-ready prompts, a
// generation pipeline that streams and persists LLM output, a plugin
// hook surface, a librarian scheduler that analyzes a story in the
// background, and a generation log for auditing every call.
//
// # Using as a Go library
//
//	import (
//	    "github.com/inkloom/inkloom-core/pkg/fragment"
//	    "github.com/inkloom/inkloom-core/pkg/generation"
//	    "github.com/inkloom/inkloom-core/pkg/story"
//	)
//
// # Dev CLI
//
// cmd/inkloom wires these packages against on-disk storage and a
// scripted mock LLM provider, for local smoke-testing without standing
// up the full HTTP API:
//
//	go run ./cmd/inkloom generate "begin the story"
//
// # License
//
// AGPL-3.0 - see LICENSE.md for details.
package inkloom
