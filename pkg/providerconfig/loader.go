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

package providerconfig

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/hashicorp/consul/api"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/consul/v2"
	"github.com/knadh/koanf/providers/etcd/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// BackendType selects where the provider registry is sourced from.
type BackendType string

const (
	BackendFile      BackendType = "file"
	BackendConsul    BackendType = "consul"
	BackendEtcd      BackendType = "etcd"
	BackendZookeeper BackendType = "zookeeper"
)

// ParseBackendType parses a case-insensitive backend name.
func ParseBackendType(s string) (BackendType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "file", "":
		return BackendFile, nil
	case "consul":
		return BackendConsul, nil
	case "etcd":
		return BackendEtcd, nil
	case "zookeeper", "zk":
		return BackendZookeeper, nil
	default:
		return "", fmt.Errorf("invalid provider config backend: %s", s)
	}
}

// LoaderOptions configures a Loader.
type LoaderOptions struct {
	Type      BackendType
	Path      string
	Endpoints []string
	Watch     bool
	OnChange  func(*Config) error
}

// Loader loads and optionally watches the provider registry.
type Loader struct {
	koanf    *koanf.Koanf
	options  LoaderOptions
	parser   *yaml.YAML
	stopChan chan struct{}
}

// NewLoader validates opts and prepares a Loader. It does not yet connect
// to any backend; call Load to do so.
func NewLoader(opts LoaderOptions) (*Loader, error) {
	if opts.Type == "" {
		opts.Type = BackendFile
	}
	if opts.Path == "" {
		return nil, fmt.Errorf("config path is required")
	}
	if len(opts.Endpoints) == 0 {
		switch opts.Type {
		case BackendConsul:
			opts.Endpoints = []string{"localhost:8500"}
		case BackendEtcd:
			opts.Endpoints = []string{"localhost:2379"}
		case BackendZookeeper:
			opts.Endpoints = []string{"localhost:2181"}
		}
	}
	return &Loader{
		koanf:    koanf.New("."),
		options:  opts,
		parser:   yaml.Parser(),
		stopChan: make(chan struct{}),
	}, nil
}

// Load fetches the registry once, expands environment references, and
// validates it. If opts.Watch is set, a background goroutine begins
// reloading on backend change notifications.
func (l *Loader) Load() (*Config, error) {
	provider, parser, err := l.buildProvider()
	if err != nil {
		return nil, err
	}

	if err := l.koanf.Load(provider, parser); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", l.options.Type, err)
	}
	if err := l.expandEnv(); err != nil {
		return nil, fmt.Errorf("expand environment variables: %w", err)
	}

	cfg, err := l.unmarshal()
	if err != nil {
		return nil, err
	}

	if l.options.Watch {
		go l.watch(provider)
	}
	return cfg, nil
}

func (l *Loader) buildProvider() (koanf.Provider, koanf.Parser, error) {
	switch l.options.Type {
	case BackendFile:
		return file.Provider(l.options.Path), l.parser, nil

	case BackendConsul:
		cfg := api.DefaultConfig()
		cfg.Address = l.options.Endpoints[0]
		return consul.Provider(consul.Config{Cfg: cfg, Key: l.options.Path}), nil, nil

	case BackendEtcd:
		return etcd.Provider(etcd.Config{
			Endpoints:   l.options.Endpoints,
			DialTimeout: 5 * time.Second,
			Key:         l.options.Path,
		}), nil, nil

	case BackendZookeeper:
		zkProvider, err := NewZookeeperProvider(l.options.Endpoints, l.options.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("create zookeeper provider: %w", err)
		}
		return zkProvider, l.parser, nil

	default:
		return nil, nil, fmt.Errorf("unsupported provider config backend: %s", l.options.Type)
	}
}

// Watcher is implemented by providers (file via fsnotify, zookeeper)
// supporting push notification of changes.
type Watcher interface {
	Watch(cb func(event interface{}, err error)) error
}

func (l *Loader) watch(provider koanf.Provider) {
	watcher, ok := provider.(Watcher)
	if !ok {
		log.Printf("⚠️  provider %s does not support watching", l.options.Type)
		return
	}

	log.Printf("🔄 config watcher started for %s", l.options.Type)

	err := watcher.Watch(func(event interface{}, err error) {
		select {
		case <-l.stopChan:
			log.Printf("🛑 config watcher stopped for %s", l.options.Type)
			return
		default:
		}
		if err != nil {
			log.Printf("⚠️  watch error: %v", err)
			return
		}

		_, parser, perr := l.buildProvider()
		if perr != nil {
			log.Printf("⚠️  rebuild provider failed: %v", perr)
			return
		}
		if err := l.koanf.Load(provider, parser); err != nil {
			log.Printf("⚠️  reload config failed: %v", err)
			return
		}
		if err := l.expandEnv(); err != nil {
			log.Printf("⚠️  expand env vars in reloaded config failed: %v", err)
			return
		}

		newCfg, err := l.unmarshal()
		if err != nil {
			log.Printf("⚠️  reloaded config processing failed: %v", err)
			return
		}
		if l.options.OnChange != nil {
			if err := l.options.OnChange(newCfg); err != nil {
				log.Printf("⚠️  config change callback failed: %v", err)
			} else {
				log.Printf("✅ provider config reloaded from %s", l.options.Type)
			}
		}
	})
	if err != nil {
		log.Printf("⚠️  watch stopped with error: %v", err)
	}
}

func (l *Loader) unmarshal() (*Config, error) {
	cfg := &Config{}
	if err := l.koanf.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func (l *Loader) expandEnv() error {
	expanded, ok := expandEnvVarsInData(l.koanf.Raw()).(map[string]interface{})
	if !ok {
		return fmt.Errorf("unexpected type after environment expansion")
	}
	next := koanf.New(".")
	if err := next.Load(confmap.Provider(expanded, "."), nil); err != nil {
		return fmt.Errorf("load expanded config: %w", err)
	}
	l.koanf = next
	return nil
}

// Stop ends any active watch goroutine.
func (l *Loader) Stop() {
	close(l.stopChan)
}

// Load is a convenience wrapper around NewLoader().Load() for callers that
// don't need to keep the Loader around (e.g. to Stop a watch).
func Load(opts LoaderOptions) (*Config, error) {
	loader, err := NewLoader(opts)
	if err != nil {
		return nil, fmt.Errorf("create loader: %w", err)
	}
	return loader.Load()
}
