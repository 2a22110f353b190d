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
	"time"

	"github.com/go-zookeeper/zk"
)

// ZookeeperProvider is a koanf-compatible provider that reads (and
// optionally watches) a single znode holding the serialized config.
type ZookeeperProvider struct {
	conn *zk.Conn
	path string
}

// NewZookeeperProvider connects to endpoints and targets path.
func NewZookeeperProvider(endpoints []string, path string) (*ZookeeperProvider, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("zookeeper endpoints are required")
	}
	if path == "" {
		return nil, fmt.Errorf("zookeeper path is required")
	}
	conn, _, err := zk.Connect(endpoints, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("connect to zookeeper: %w", err)
	}
	return &ZookeeperProvider{conn: conn, path: path}, nil
}

// ReadBytes implements koanf.Provider.
func (p *ZookeeperProvider) ReadBytes() ([]byte, error) {
	data, _, err := p.conn.Get(p.path)
	if err != nil {
		return nil, fmt.Errorf("read zookeeper path %s: %w", p.path, err)
	}
	return data, nil
}

// Read implements koanf.Provider for parser-less loads; unused here since
// the config is always YAML and goes through ReadBytes.
func (p *ZookeeperProvider) Read() (map[string]interface{}, error) {
	return nil, fmt.Errorf("zookeeper provider requires a parser")
}

// Watch re-reads the znode on every data-change event and invokes callback.
func (p *ZookeeperProvider) Watch(callback func(event interface{}, err error)) error {
	for {
		_, _, eventCh, err := p.conn.GetW(p.path)
		if err != nil {
			callback(nil, fmt.Errorf("watch zookeeper path %s: %w", p.path, err))
			return err
		}
		event := <-eventCh
		switch event.Type {
		case zk.EventNodeDataChanged, zk.EventNodeDeleted, zk.EventNodeCreated:
			callback(event, nil)
		case zk.EventNotWatching:
			return nil
		}
	}
}
