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

// Package idgen generates the id formats used across the store: pronounceable
// fragment ids, branch ids, and millisecond-based story/provider/log ids.
package idgen

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"
)

const (
	consonants = "bdfgkmnprstvz"
	vowels     = "aeiou"
)

// FragmentType identifies a fragment's closed type set for prefix lookup.
type FragmentType string

const (
	TypeProse     FragmentType = "prose"
	TypeCharacter FragmentType = "character"
	TypeGuideline FragmentType = "guideline"
	TypeKnowledge FragmentType = "knowledge"
	TypeImage     FragmentType = "image"
	TypeIcon      FragmentType = "icon"
	TypeMarker    FragmentType = "marker"
)

// prefixes maps the closed fragment type set to their id prefix. Plugin
// defined types are not in this map; callers of FragmentID pass an explicit
// prefix for those.
var prefixes = map[FragmentType]string{
	TypeProse:     "pr",
	TypeCharacter: "ch",
	TypeGuideline: "gl",
	TypeKnowledge: "kn",
	TypeImage:     "im",
	TypeIcon:      "ic",
	TypeMarker:    "mk",
}

// PrefixFor returns the id prefix for a closed-set fragment type, and
// whether it was found. Plugin-defined types must supply their own prefix.
func PrefixFor(t FragmentType) (string, bool) {
	p, ok := prefixes[t]
	return p, ok
}

// pronounceable returns a 6-character alternating consonant/vowel string,
// e.g. "bokura". It always starts with a consonant and then alternates
// vowel/consonant so the result stays pronounceable.
func pronounceable() string {
	var sb strings.Builder
	startWithConsonant := true
	for i := 0; i < 6; i++ {
		set := vowels
		if (i%2 == 0) == startWithConsonant {
			set = consonants
		}
		sb.WriteByte(set[randIndex(len(set))])
	}
	return sb.String()
}

func randIndex(n int) int {
	max := big.NewInt(int64(n))
	v, err := rand.Int(rand.Reader, max)
	if err != nil {
		// crypto/rand failure is effectively unrecoverable on any real
		// platform; fall back to a fixed index rather than panic so id
		// generation stays total.
		return 0
	}
	return int(v.Int64())
}

// FragmentID builds an id of the form "{prefix}-{pronounceable}", e.g.
// "ch-bokura". The prefix is looked up from the closed type set; pass
// explicitPrefix for plugin-defined types.
func FragmentID(t FragmentType, explicitPrefix string) string {
	prefix := explicitPrefix
	if p, ok := PrefixFor(t); ok {
		prefix = p
	}
	return fmt.Sprintf("%s-%s", prefix, pronounceable())
}

// BranchID builds a "br-{pronounceable}" id.
func BranchID() string {
	return "br-" + pronounceable()
}

// FolderID builds a "fld-{pronounceable}" id.
func FolderID() string {
	return "fld-" + pronounceable()
}

// msBase36 returns the current time in milliseconds, base36-encoded.
func msBase36(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 36)
}

// StoryID builds a "story-{base36(ms)}" id.
func StoryID(now time.Time) string {
	return "story-" + msBase36(now)
}

// ProviderID builds a "prov-{base36(ms)}" id.
func ProviderID(now time.Time) string {
	return "prov-" + msBase36(now)
}

// LogID builds a "gen-{base36(ms)}" id.
func LogID(now time.Time) string {
	return "gen-" + msBase36(now)
}

// AnalysisID builds an "an-{base36(ms)}" id for a librarian analysis.
func AnalysisID(now time.Time) string {
	return "an-" + msBase36(now)
}

// HasPrefix reports whether id starts with "{prefix}-".
func HasPrefix(id, prefix string) bool {
	return strings.HasPrefix(id, prefix+"-")
}
