package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sandevgo/chorus/internal/core"
)

// LoadPersonas reads the persona declarations from personas.json in the
// runtime directory. The file is the single source of truth; persona CRUD
// happens outside this service.
func LoadPersonas(path string) ([]core.Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read personas file: %w", err)
	}

	var personas []core.Persona
	if err := json.Unmarshal(data, &personas); err != nil {
		return nil, fmt.Errorf("decode personas file: %w", err)
	}

	seen := make(map[string]struct{}, len(personas))
	for i, p := range personas {
		if p.Name == "" {
			return nil, fmt.Errorf("persona %d: missing name", i)
		}
		if p.SystemPrompt == "" {
			return nil, fmt.Errorf("persona %q: missing system_prompt", p.Name)
		}
		if p.Provider == "" {
			return nil, fmt.Errorf("persona %q: missing provider", p.Name)
		}
		if _, dup := seen[p.Name]; dup {
			return nil, fmt.Errorf("persona %q: duplicate name", p.Name)
		}
		seen[p.Name] = struct{}{}
		if personas[i].DisplayName == "" {
			personas[i].DisplayName = p.Name
		}
	}
	return personas, nil
}
