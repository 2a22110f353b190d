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

package observability

import (
	"net/http"
	"time"
)

// NoopManager returns a Manager with tracing and metrics both disabled; its
// Recorder() is a NoopRecorder.
func NoopManager() *Manager {
	return &Manager{}
}

// NoopRecorder is a Recorder that records nothing. Pipeline and Scheduler
// use it when their Recorder field is nil.
type NoopRecorder struct{}

func (NoopRecorder) RecordGeneration(_, _, _ string, _ time.Duration, _, _ int, _ error) {}
func (NoopRecorder) RecordToolExecution(_ string, _ time.Duration, _ error)              {}
func (NoopRecorder) RecordLibrarianRun(_ string, _ time.Duration, _ int, _ error)         {}
func (NoopRecorder) RecordFragmentWrite(_, _ string)                                     {}

// Handler returns a handler reporting metrics as unavailable.
func (NoopRecorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("metrics not enabled"))
	})
}

var _ Recorder = NoopRecorder{}
