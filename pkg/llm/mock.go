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

package llm

import "context"

// MockProvider replays a fixed Script of events, ignoring the request
// content. It exists for tests and the dev CLI's local smoke-testing mode;
// it is not a real provider integration.
type MockProvider struct {
	Script []Event
}

// Stream returns a channel that emits Script in order, then closes.
// Cancelling ctx stops delivery early.
func (m *MockProvider) Stream(ctx context.Context, req StreamRequest) (<-chan Event, error) {
	ch := make(chan Event)
	go func() {
		defer close(ch)
		for _, ev := range m.Script {
			select {
			case <-ctx.Done():
				return
			case ch <- ev:
			}
		}
	}()
	return ch, nil
}
