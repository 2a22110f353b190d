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

// Package providerconfig loads the top-level provider registry
// (config.json) from a file, Consul, etcd, or Zookeeper backend, with
// optional live reload. Provider credentials are out of scope; this
// config only resolves which providers exist and which model each
// defaults to.
package providerconfig

import "fmt"

// ProviderConfig describes one configured LLM provider endpoint. Credential
// material (API keys, tokens) is never stored here; resolving credentials
// is a caller concern outside this package.
type ProviderConfig struct {
	ID           string `yaml:"id" json:"id"`
	Name         string `yaml:"name" json:"name"`
	Kind         string `yaml:"kind" json:"kind"`
	BaseURL      string `yaml:"baseUrl,omitempty" json:"baseUrl,omitempty"`
	DefaultModel string `yaml:"defaultModel,omitempty" json:"defaultModel,omitempty"`
}

// Config is the root provider registry.
type Config struct {
	Providers         []ProviderConfig `yaml:"providers" json:"providers"`
	DefaultProviderID string           `yaml:"defaultProviderId,omitempty" json:"defaultProviderId,omitempty"`
}

// Validate checks referential integrity: defaultProviderId (if set) must
// name a configured provider, and provider ids/kinds must be non-empty.
func (c *Config) Validate() error {
	seen := map[string]bool{}
	for _, p := range c.Providers {
		if p.ID == "" {
			return fmt.Errorf("provider entry missing id")
		}
		if p.Kind == "" {
			return fmt.Errorf("provider %s missing kind", p.ID)
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate provider id %s", p.ID)
		}
		seen[p.ID] = true
	}
	if c.DefaultProviderID != "" && !seen[c.DefaultProviderID] {
		return fmt.Errorf("defaultProviderId %s is not a configured provider", c.DefaultProviderID)
	}
	return nil
}

// ProviderByID looks up a provider by id.
func (c *Config) ProviderByID(id string) (*ProviderConfig, bool) {
	for i := range c.Providers {
		if c.Providers[i].ID == id {
			return &c.Providers[i], true
		}
	}
	return nil, false
}
