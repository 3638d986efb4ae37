package config

import (
	"context"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/chorus/pkg/log"
)

// LLMConfig holds credentials for the chat providers personas may bind to.
// Which provider a persona uses is declared per persona, not here.
type LLMConfig struct {
	OpenAIAPIKey     string `env:"OPENAI_API_KEY"`
	OpenRouterAPIKey string `env:"OPENROUTER_API_KEY"`
	OllamaBaseURL    string `env:"OLLAMA_BASE_URL" envDefault:"http://localhost:11434"`
	OllamaAPIKey     string `env:"OLLAMA_API_KEY"`
}

func NewLLMConfig(ctx context.Context) *LLMConfig {
	c := &LLMConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse LLM config")
	}
	return c
}
