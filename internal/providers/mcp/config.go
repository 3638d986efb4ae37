package mcp

import (
	"encoding/json"
	"fmt"
	"os"
)

type Config struct {
	MCPServers map[string]ServerConfig `json:"mcpServers"`
}

// ServerConfig represents an entry in mcp_config.json. Servers run as
// child processes speaking MCP over stdio.
type ServerConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args"`
	Env     map[string]string `json:"env"`
}

// LoadConfig reads the server list, creating an empty default file when
// none exists so operators have something to edit.
func LoadConfig(path string) (Config, error) {
	cfg := Config{MCPServers: make(map[string]ServerConfig)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		data, err = json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return cfg, fmt.Errorf("marshal default mcp config: %w", err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return cfg, fmt.Errorf("write default mcp config: %w", err)
		}
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read mcp config: %w", err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse mcp config: %w", err)
	}
	if cfg.MCPServers == nil {
		cfg.MCPServers = make(map[string]ServerConfig)
	}
	return cfg, nil
}
