// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package storylayout centralizes the on-disk directory layout shared by
// the fragment store, branch manager, prose chain, association index,
// librarian, and generation log, so no two packages compute a path
// independently.
//
// Layout (relative to a data directory):
//
//	stories/<storyId>/
//	  meta.json
//	  branches.json
//	  associations.json
//	  content/<branchId>/
//	    fragments/<fragmentId>.json
//	    fragments/<fragmentId>.tomb
//	    prose-chain.json
//	  librarian/
//	    state.json
//	    analyses/<analysisId>.json
//	    chat.json
//	  generation-logs/<logId>.json
//	config.json
package storylayout

import "path/filepath"

// ConfigPath returns the path to the top-level provider configuration file.
func ConfigPath(dataDir string) string {
	return filepath.Join(dataDir, "config.json")
}

// StoriesDir returns the root directory holding all stories.
func StoriesDir(dataDir string) string {
	return filepath.Join(dataDir, "stories")
}

// StoryDir returns the root directory for a single story.
func StoryDir(dataDir, storyID string) string {
	return filepath.Join(StoriesDir(dataDir), storyID)
}

// MetaPath returns the path to a story's metadata file.
func MetaPath(dataDir, storyID string) string {
	return filepath.Join(StoryDir(dataDir, storyID), "meta.json")
}

// BranchesPath returns the path to a story's branch registry file.
func BranchesPath(dataDir, storyID string) string {
	return filepath.Join(StoryDir(dataDir, storyID), "branches.json")
}

// ContentDir returns a branch's content root.
func ContentDir(dataDir, storyID, branchID string) string {
	return filepath.Join(StoryDir(dataDir, storyID), "content", branchID)
}

// FragmentsDir returns the fragments directory for a branch.
func FragmentsDir(dataDir, storyID, branchID string) string {
	return filepath.Join(ContentDir(dataDir, storyID, branchID), "fragments")
}

// FragmentPath returns a fragment's JSON file path within a branch.
func FragmentPath(dataDir, storyID, branchID, fragmentID string) string {
	return filepath.Join(FragmentsDir(dataDir, storyID, branchID), fragmentID+".json")
}

// TombstonePath returns a fragment's tombstone marker path within a branch.
func TombstonePath(dataDir, storyID, branchID, fragmentID string) string {
	return filepath.Join(FragmentsDir(dataDir, storyID, branchID), fragmentID+".tomb")
}

// AssociationsPath returns the association-index file path for a story. The
// tag/ref indexes are shared across all of a story's branches, not
// per-branch content.
func AssociationsPath(dataDir, storyID string) string {
	return filepath.Join(StoryDir(dataDir, storyID), "associations.json")
}

// ProseChainPath returns the prose-chain file path for a branch.
func ProseChainPath(dataDir, storyID, branchID string) string {
	return filepath.Join(ContentDir(dataDir, storyID, branchID), "prose-chain.json")
}

// LibrarianDir returns the librarian state directory for a story.
func LibrarianDir(dataDir, storyID string) string {
	return filepath.Join(StoryDir(dataDir, storyID), "librarian")
}

// LibrarianStatePath returns the librarian state-machine file path.
func LibrarianStatePath(dataDir, storyID string) string {
	return filepath.Join(LibrarianDir(dataDir, storyID), "state.json")
}

// AnalysesDir returns the directory holding librarian analyses.
func AnalysesDir(dataDir, storyID string) string {
	return filepath.Join(LibrarianDir(dataDir, storyID), "analyses")
}

// AnalysisPath returns a single analysis file path.
func AnalysisPath(dataDir, storyID, analysisID string) string {
	return filepath.Join(AnalysesDir(dataDir, storyID), analysisID+".json")
}

// ChatPath returns the librarian chat-transcript file path.
func ChatPath(dataDir, storyID string) string {
	return filepath.Join(LibrarianDir(dataDir, storyID), "chat.json")
}

// GenerationLogsDir returns the directory holding generation-log records.
func GenerationLogsDir(dataDir, storyID string) string {
	return filepath.Join(StoryDir(dataDir, storyID), "generation-logs")
}

// GenerationLogPath returns a single generation-log file path.
func GenerationLogPath(dataDir, storyID, logID string) string {
	return filepath.Join(GenerationLogsDir(dataDir, storyID), logID+".json")
}
