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

// Package pluginhost launches and supervises out-of-process plugins
// implementing the hook surface (§4.8) via hashicorp/go-plugin's net/rpc
// transport, and adapts a discovered client into an in-process
// plugin.Hooks so the generation pipeline never distinguishes local from
// remote hooks.
//
// net/rpc, not gRPC: a HookPlugin's six RPCs have no generated-stub
// equivalent anywhere in the corpus to ground a gRPC service on, and
// hand-writing new .pb.go stubs would be fabricating generated code. go-plugin's
// net/rpc mode needs only a plain Go server/client pair over its own gob
// codec, which is ordinary hand-written Go.
package pluginhost

import (
	"fmt"
	"net/rpc"
	"os/exec"

	hcplugin "github.com/hashicorp/go-plugin"

	"github.com/inkloom/inkloom-core/pkg/contextbuilder"
	"github.com/inkloom/inkloom-core/pkg/fragment"
	"github.com/inkloom/inkloom-core/pkg/llm"
	"github.com/inkloom/inkloom-core/pkg/plugin"
)

// Handshake is the shared magic cookie both host and plugin binary check
// before negotiating a connection.
var Handshake = hcplugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "INKLOOM_HOOK_PLUGIN",
	MagicCookieValue: "a-fragment-hook-plugin",
}

// HookPluginName is the key a plugin binary registers its implementation
// under in hcplugin.PluginSet.
const HookPluginName = "hook"

// HookRPCArgs/Reply types. net/rpc requires exported struct types, not
// bare values, for every method's argument and reply.
type (
	BeforeContextArgs  struct{ State *contextbuilder.State }
	BeforeContextReply struct{ State *contextbuilder.State }

	BeforeGenerationArgs  struct{ Messages []llm.Message }
	BeforeGenerationReply struct{ Messages []llm.Message }

	AfterGenerationArgs  struct{ Result plugin.GenerationResult }
	AfterGenerationReply struct{ Result plugin.GenerationResult }

	AfterSaveArgs struct {
		Fragment *fragment.Fragment
		StoryID  string
	}
	AfterSaveReply struct{}

	ToolsArgs  struct{}
	ToolsReply struct{ Tools []llm.ToolDefinition }

	InvokeToolArgs struct {
		Name string
		Args map[string]any
	}
	InvokeToolReply struct{ Result map[string]any }
)

// HookPlugin is the hcplugin.Plugin implementation registered on both
// sides of the process boundary.
type HookPlugin struct {
	// Impl is set on the plugin-binary side only; the host side dispenses
	// a client and never sets this.
	Impl plugin.Hooks
}

func (p *HookPlugin) Server(*hcplugin.MuxBroker) (interface{}, error) {
	return &hookRPCServer{impl: p.Impl}, nil
}

func (p *HookPlugin) Client(b *hcplugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &hookRPCClient{client: c}, nil
}

// hookRPCServer runs inside the plugin binary, dispatching net/rpc calls to
// the real plugin.Hooks implementation.
type hookRPCServer struct {
	impl plugin.Hooks
}

func (s *hookRPCServer) BeforeContext(args *BeforeContextArgs, reply *BeforeContextReply) error {
	state, err := s.impl.BeforeContext(args.State)
	if err != nil {
		return err
	}
	reply.State = state
	return nil
}

func (s *hookRPCServer) BeforeGeneration(args *BeforeGenerationArgs, reply *BeforeGenerationReply) error {
	messages, err := s.impl.BeforeGeneration(args.Messages)
	if err != nil {
		return err
	}
	reply.Messages = messages
	return nil
}

func (s *hookRPCServer) AfterGeneration(args *AfterGenerationArgs, reply *AfterGenerationReply) error {
	result, err := s.impl.AfterGeneration(args.Result)
	if err != nil {
		return err
	}
	reply.Result = result
	return nil
}

func (s *hookRPCServer) AfterSave(args *AfterSaveArgs, reply *AfterSaveReply) error {
	return s.impl.AfterSave(args.Fragment, args.StoryID)
}

func (s *hookRPCServer) Tools(args *ToolsArgs, reply *ToolsReply) error {
	reply.Tools = s.impl.Tools()
	return nil
}

func (s *hookRPCServer) InvokeTool(args *InvokeToolArgs, reply *InvokeToolReply) error {
	result, err := s.impl.InvokeTool(args.Name, args.Args)
	if err != nil {
		return err
	}
	reply.Result = result
	return nil
}

// hookRPCClient runs inside the host process, implementing plugin.Hooks by
// making net/rpc calls to the plugin binary.
type hookRPCClient struct {
	name   string
	client *rpc.Client
}

func (c *hookRPCClient) Name() string { return c.name }

func (c *hookRPCClient) BeforeContext(state *contextbuilder.State) (*contextbuilder.State, error) {
	var reply BeforeContextReply
	if err := c.client.Call("Plugin.BeforeContext", &BeforeContextArgs{State: state}, &reply); err != nil {
		return nil, err
	}
	return reply.State, nil
}

func (c *hookRPCClient) BeforeGeneration(messages []llm.Message) ([]llm.Message, error) {
	var reply BeforeGenerationReply
	if err := c.client.Call("Plugin.BeforeGeneration", &BeforeGenerationArgs{Messages: messages}, &reply); err != nil {
		return nil, err
	}
	return reply.Messages, nil
}

func (c *hookRPCClient) AfterGeneration(result plugin.GenerationResult) (plugin.GenerationResult, error) {
	var reply AfterGenerationReply
	if err := c.client.Call("Plugin.AfterGeneration", &AfterGenerationArgs{Result: result}, &reply); err != nil {
		return plugin.GenerationResult{}, err
	}
	return reply.Result, nil
}

func (c *hookRPCClient) AfterSave(f *fragment.Fragment, storyID string) error {
	var reply AfterSaveReply
	return c.client.Call("Plugin.AfterSave", &AfterSaveArgs{Fragment: f, StoryID: storyID}, &reply)
}

// Tools swallows an RPC failure rather than propagating it: Tools() has no
// error return to give it, and a plugin that can't answer simply
// contributes no tools this call.
func (c *hookRPCClient) Tools() []llm.ToolDefinition {
	var reply ToolsReply
	if err := c.client.Call("Plugin.Tools", &ToolsArgs{}, &reply); err != nil {
		return nil
	}
	return reply.Tools
}

func (c *hookRPCClient) InvokeTool(name string, args map[string]any) (map[string]any, error) {
	var reply InvokeToolReply
	if err := c.client.Call("Plugin.InvokeTool", &InvokeToolArgs{Name: name, Args: args}, &reply); err != nil {
		return nil, err
	}
	return reply.Result, nil
}

// Launch starts the plugin binary at path and returns a plugin.Hooks
// backed by it, plus the underlying *hcplugin.Client for lifecycle
// control (Kill on shutdown).
func Launch(name, path string) (plugin.Hooks, *hcplugin.Client, error) {
	client := hcplugin.NewClient(&hcplugin.ClientConfig{
		HandshakeConfig: Handshake,
		Plugins:         map[string]hcplugin.Plugin{HookPluginName: &HookPlugin{}},
		Cmd:             exec.Command(path),
		AllowedProtocols: []hcplugin.Protocol{
			hcplugin.ProtocolNetRPC,
		},
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, nil, err
	}

	raw, err := rpcClient.Dispense(HookPluginName)
	if err != nil {
		client.Kill()
		return nil, nil, err
	}

	hooks, ok := raw.(*hookRPCClient)
	if !ok {
		client.Kill()
		return nil, nil, fmt.Errorf("pluginhost: dispensed plugin %q is not a hook client", name)
	}
	hooks.name = name
	return hooks, client, nil
}
