// Package mcp aggregates the tools the agent may call: native Go tools
// registered in-process and external MCP servers spawned from
// mcp_config.json. The Manager implements core.ToolRunner and hides which
// side a tool lives on.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	mcpproto "github.com/mark3labs/mcp-go/mcp"
	"github.com/sandevgo/chorus/internal/core"
	"github.com/sandevgo/chorus/pkg/log"
)

const (
	clientName    = "chorus"
	clientVersion = "0.1.0"

	listToolsTimeout = 5 * time.Second
	callToolTimeout  = 2 * time.Minute
)

// NativeHandler is the signature for in-process tools. The tool context
// identifies the turn, so session-scoped tools can reach their session.
type NativeHandler func(ctx context.Context, args json.RawMessage, tc core.ToolContext) (string, error)

type Manager struct {
	mu           sync.RWMutex
	config       Config
	clients      map[string]*client.Client
	toolToClient map[string]*client.Client

	cachedTools []core.Tool
	cacheValid  bool

	nativeTools    map[string]NativeHandler
	nativeToolDefs []core.Tool
}

func NewManager(cfg Config) *Manager {
	return &Manager{
		config:       cfg,
		clients:      make(map[string]*client.Client),
		toolToClient: make(map[string]*client.Client),
		nativeTools:  make(map[string]NativeHandler),
	}
}

// RegisterNativeTool adds an in-process Go function as a tool. Native
// tools shadow external tools with the same name.
func (m *Manager) RegisterNativeTool(name, description string, schema json.RawMessage, handler NativeHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nativeTools[name] = handler
	m.nativeToolDefs = append(m.nativeToolDefs, core.Tool{
		Type: "function",
		Function: core.Function{
			Name:        name,
			Description: description,
			Parameters:  schema,
		},
	})
	m.cacheValid = false
}

// Start connects to every configured server. Implements the srv.Service
// interface.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cacheValid = false
	for name, srv := range m.config.MCPServers {
		log.FromCtx(ctx).Info().Str("server", name).Msg("starting mcp connection")

		cli, err := m.connectToServer(ctx, srv)
		if err != nil {
			return fmt.Errorf("start mcp server %s: %w", name, err)
		}
		m.clients[name] = cli
	}
	return nil
}

func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for name, cli := range m.clients {
		if err := cli.Close(); err != nil {
			log.FromCtx(ctx).Error().Err(err).Str("server", name).Msg("failed to close mcp client")
		}
	}
	return nil
}

// GetTools returns the combined tool list, native first. External lists
// are fetched in parallel and cached until invalidated; a server that
// fails to answer is skipped, not fatal.
func (m *Manager) GetTools(ctx context.Context) ([]core.Tool, error) {
	m.mu.RLock()
	if m.cacheValid {
		tools := m.cachedTools
		m.mu.RUnlock()
		return tools, nil
	}
	allTools := append([]core.Tool(nil), m.nativeToolDefs...)
	snapshot := make(map[string]*client.Client, len(m.clients))
	for k, v := range m.clients {
		snapshot[k] = v
	}
	m.mu.RUnlock()

	type toolResult struct {
		serverName string
		tools      []mcpproto.Tool
		err        error
	}
	results := make(chan toolResult, len(snapshot))
	var wg sync.WaitGroup

	for name, cli := range snapshot {
		wg.Add(1)
		go func(n string, c *client.Client) {
			defer wg.Done()
			tCtx, cancel := context.WithTimeout(ctx, listToolsTimeout)
			defer cancel()

			resp, err := c.ListTools(tCtx, mcpproto.ListToolsRequest{})
			if err != nil {
				results <- toolResult{serverName: n, err: err}
				return
			}
			results <- toolResult{serverName: n, tools: resp.Tools}
		}(name, cli)
	}

	wg.Wait()
	close(results)

	newToolToClient := make(map[string]*client.Client)
	for res := range results {
		if res.err != nil {
			log.FromCtx(ctx).Error().Err(res.err).Str("server", res.serverName).Msg("failed to list tools")
			continue
		}
		for _, t := range res.tools {
			// Last server wins on duplicate names.
			newToolToClient[t.Name] = snapshot[res.serverName]

			schemaBytes, _ := json.Marshal(t.InputSchema)
			allTools = append(allTools, core.Tool{
				Type: "function",
				Function: core.Function{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  schemaBytes,
				},
			})
		}
	}

	m.mu.Lock()
	m.cachedTools = allTools
	m.toolToClient = newToolToClient
	m.cacheValid = true
	m.mu.Unlock()

	return allTools, nil
}

// CallTool dispatches to a native handler when one is registered under
// the name, otherwise to the owning MCP server.
func (m *Manager) CallTool(ctx context.Context, name, args string, tc core.ToolContext) (string, error) {
	m.mu.RLock()
	handler, isNative := m.nativeTools[name]
	cli, hasClient := m.toolToClient[name]
	m.mu.RUnlock()

	if isNative {
		return handler(ctx, json.RawMessage(args), tc)
	}
	if !hasClient {
		return "", fmt.Errorf("tool not found: %s", name)
	}

	var argsMap map[string]any
	if err := json.Unmarshal([]byte(args), &argsMap); err != nil {
		return "", fmt.Errorf("invalid json arguments: %w", err)
	}

	req := mcpproto.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = argsMap

	tCtx, cancel := context.WithTimeout(ctx, callToolTimeout)
	defer cancel()

	res, err := cli.CallTool(tCtx, req)
	if err != nil {
		return "", err
	}
	if res.IsError {
		return "", fmt.Errorf("tool %s reported an error", name)
	}

	var output string
	for _, content := range res.Content {
		if text, ok := content.(mcpproto.TextContent); ok {
			output += text.Text + "\n"
		} else if textPtr, ok := content.(*mcpproto.TextContent); ok {
			output += textPtr.Text + "\n"
		}
	}
	return output, nil
}

func (m *Manager) connectToServer(ctx context.Context, srv ServerConfig) (*client.Client, error) {
	var env []string
	for k, v := range srv.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	cli, err := client.NewStdioMCPClient(srv.Command, env, srv.Args...)
	if err != nil {
		return nil, err
	}

	if err := cli.Start(ctx); err != nil {
		return nil, err
	}

	initReq := mcpproto.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpproto.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpproto.Implementation{
		Name:    clientName,
		Version: clientVersion,
	}
	initReq.Params.Capabilities = mcpproto.ClientCapabilities{}

	if _, err := cli.Initialize(ctx, initReq); err != nil {
		_ = cli.Close()
		return nil, err
	}
	return cli, nil
}
