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

// Package mcpsurface exposes the fixed fragment toolset (pkg/tool/fragmenttool)
// as MCP tools, so an external MCP-speaking client (an editor, say) can call
// createFragment/searchFragmentsByTag/etc. directly against a story. This is
// an additive transport alongside the in-process tool-call loop the
// generation pipeline already runs; it does not replace it.
package mcpsurface

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/inkloom/inkloom-core/pkg/tool/fragmenttool"
)

// Server is an MCP server exposing one story's fragment toolset.
type Server struct {
	mcp   *server.MCPServer
	scope *fragmenttool.Scope
}

// New builds an MCP server that registers every tool in pkg/tool/fragmenttool's
// fixed registry, dispatching each call against scope. name/version identify
// this server to connecting MCP clients during the initialize handshake.
func New(name, version string, scope *fragmenttool.Scope) *Server {
	s := &Server{
		mcp:   server.NewMCPServer(name, version),
		scope: scope,
	}
	for _, t := range fragmenttool.Registry() {
		s.register(t)
	}
	return s
}

// register converts one fragmenttool.Tool into an MCP tool definition and
// handler. The fragment toolset's InputSchema is already a plain JSON-schema
// map (see fragmenttool's tool definitions), so it's marshaled straight into
// mcp-go's raw-schema tool constructor rather than rebuilt field-by-field
// through mcp-go's WithString/WithNumber/... option builders.
func (s *Server) register(t fragmenttool.Tool) {
	schema, err := json.Marshal(t.Definition.InputSchema)
	if err != nil {
		schema = []byte(`{"type":"object"}`)
	}
	mcpTool := mcp.NewToolWithRawSchema(t.Definition.Name, t.Definition.Description, schema)

	handler := t.Handler
	s.mcp.AddTool(mcpTool, func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := req.Params.Arguments.(map[string]any)
		result, err := handler(s.scope, args)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		data, err := json.Marshal(result)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("marshal result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	})
}

// ServeStdio blocks serving this story's fragment toolset over stdio, for
// editor/IDE integrations that launch an MCP server as a subprocess.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}
