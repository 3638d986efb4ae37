// Package llm implements chat providers speaking the OpenAI-compatible
// wire protocol. Providers are constructed per persona: each persona
// declares which provider and model it talks to, and the factory hands
// out one cached client per (provider, model) pair.
package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/sandevgo/chorus/internal/config"
	"github.com/sandevgo/chorus/internal/core"
	"github.com/sandevgo/chorus/pkg/log"
)

type Factory struct {
	cfg *config.LLMConfig

	mu    sync.Mutex
	cache map[string]core.AIProvider
}

func NewFactory(cfg *config.LLMConfig) *Factory {
	return &Factory{
		cfg:   cfg,
		cache: make(map[string]core.AIProvider),
	}
}

// ProviderFor returns the chat client for a persona's declared provider
// and model. Clients are cached: personas sharing a (provider, model)
// pair share one client.
func (f *Factory) ProviderFor(ctx context.Context, persona core.Persona) (core.AIProvider, error) {
	key := persona.Provider + "/" + persona.Model

	f.mu.Lock()
	defer f.mu.Unlock()

	if p, ok := f.cache[key]; ok {
		return p, nil
	}

	p, err := f.build(persona)
	if err != nil {
		return nil, err
	}

	log.FromCtx(ctx).Info().
		Str("provider", persona.Provider).
		Str("model", persona.Model).
		Msg("created llm provider")

	f.cache[key] = p
	return p, nil
}

func (f *Factory) build(persona core.Persona) (core.AIProvider, error) {
	switch persona.Provider {
	case "openai":
		return NewOpenAI(f.cfg.OpenAIAPIKey, persona.Model), nil
	case "openrouter":
		return NewOpenRouter(f.cfg.OpenRouterAPIKey, persona.Model), nil
	case "ollama":
		return NewOllama(f.cfg.OllamaBaseURL, f.cfg.OllamaAPIKey, persona.Model), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q for persona %q", persona.Provider, persona.Name)
	}
}
