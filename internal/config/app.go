package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/chorus/pkg/log"
)

type AppConfig struct {
	RuntimePath string `env:"CHORUS_RUNTIME_PATH" envDefault:".chorus"`

	// Transport flags
	EnableTelegram bool `env:"ENABLE_TELEGRAM" envDefault:"false"`

	// Session management
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"30m"`
	SweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL" envDefault:"60s"`

	// Context assembly
	HistoryCap  int `env:"CONTEXT_HISTORY_CAP" envDefault:"12"`
	HistoryKeep int `env:"CONTEXT_HISTORY_KEEP" envDefault:"10"`

	// Retrieval
	RetrievalLimit     int     `env:"RETRIEVAL_LIMIT" envDefault:"5"`
	RetrievalThreshold float64 `env:"RETRIEVAL_THRESHOLD" envDefault:"0.6"`
}

func NewAppConfig(ctx context.Context) *AppConfig {
	c := &AppConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse App config")
	}
	return c
}

func (c AppConfig) GetDatabasePath() string {
	return filepath.Join(c.RuntimePath, "chorus.db")
}

func (c AppConfig) GetPersonasPath() string {
	return filepath.Join(c.RuntimePath, "personas.json")
}

func (c AppConfig) GetMCPConfigPath() string {
	return filepath.Join(c.RuntimePath, "mcp_config.json")
}

func (c AppConfig) GetKnowledgePath() string {
	return filepath.Join(c.RuntimePath, "knowledge")
}
