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

package pluginhost

import (
	hcplugin "github.com/hashicorp/go-plugin"

	"github.com/inkloom/inkloom-core/pkg/plugin"
)

// Registry launches and owns a set of out-of-process hook plugins,
// registering each into a plugin.Registry so the generation pipeline sees
// them exactly like in-process hooks. Discovery of binary paths is a
// non-goal here: callers hand Registry already-resolved paths.
type Registry struct {
	inner   *plugin.Registry
	clients []*hcplugin.Client
}

// NewRegistry wraps an existing in-process hook registry so out-of-process
// plugins and in-process ones share one registration-order list.
func NewRegistry(inner *plugin.Registry) *Registry {
	return &Registry{inner: inner}
}

// LaunchAndRegister starts the plugin binary at path, registers its
// plugin.Hooks adapter into the shared registry, and keeps the client
// handle for Shutdown.
func (r *Registry) LaunchAndRegister(name, path string) error {
	hooks, client, err := Launch(name, path)
	if err != nil {
		return err
	}
	r.clients = append(r.clients, client)
	r.inner.Register(hooks)
	return nil
}

// Shutdown kills every launched plugin process. Safe to call on a Registry
// that launched nothing.
func (r *Registry) Shutdown() {
	for _, c := range r.clients {
		c.Kill()
	}
}
