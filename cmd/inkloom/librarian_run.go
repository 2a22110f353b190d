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

import "fmt"

// LibrarianRunCmd runs one analysis pass synchronously against the dev
// analyzer, rather than waiting out the real debounce window a save
// would normally trigger.
type LibrarianRunCmd struct{}

func (c *LibrarianRunCmd) Run(cli *CLI) error {
	storyID, err := requireStory(cli)
	if err != nil {
		return err
	}

	a := newApp(cli.DataDir)
	if _, err := a.Stories.Get(storyID); err != nil {
		return fmt.Errorf("librarian-run: %w", err)
	}

	a.Librarian.RunNow(storyID)

	state, err := a.Librarian.State(storyID)
	if err != nil {
		return fmt.Errorf("librarian-run: read state: %w", err)
	}

	fmt.Printf("story:      %s\n", storyID)
	fmt.Printf("status:     %s\n", state.RunStatus)
	fmt.Printf("last error: %s\n", state.LastError)
	fmt.Printf("analyses:   %d\n", len(state.AnalysisIDs))
	return nil
}
