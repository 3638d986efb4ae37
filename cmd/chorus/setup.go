package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/sandevgo/chorus/internal/config"
	"github.com/sandevgo/chorus/internal/core"
	"github.com/sandevgo/chorus/internal/providers/llm"
	"github.com/sandevgo/chorus/internal/providers/mcp"
	"github.com/sandevgo/chorus/internal/providers/rag"
	"github.com/sandevgo/chorus/internal/providers/tools"
	"github.com/sandevgo/chorus/internal/queue"
	"github.com/sandevgo/chorus/internal/service/agent"
	"github.com/sandevgo/chorus/internal/service/persist"
	"github.com/sandevgo/chorus/internal/service/prompt"
	"github.com/sandevgo/chorus/internal/service/retrieval"
	"github.com/sandevgo/chorus/internal/service/turn"
	"github.com/sandevgo/chorus/internal/session"
	"github.com/sandevgo/chorus/internal/storage/sqlite"
	"github.com/sandevgo/chorus/internal/transport/httpapi"
	"github.com/sandevgo/chorus/internal/transport/telegram"
	"github.com/sandevgo/chorus/internal/worker"
	"github.com/sandevgo/chorus/pkg/log"
	"github.com/sandevgo/chorus/pkg/srv"
)

func NewServices(ctx context.Context) []srv.Service {
	logger := log.FromCtx(ctx)
	services := make([]srv.Service, 0)

	// init env
	if err := initEnv(ctx, config.GetRuntimePath()); err != nil {
		logger.Fatal().Err(err).Msg("failed to init env")
	}

	// 1. Configuration
	appCfg := config.NewAppConfig(ctx)
	llmCfg := config.NewLLMConfig(ctx)
	embCfg := config.NewEmbeddingConfig(ctx)

	if err := os.MkdirAll(appCfg.RuntimePath, 0o755); err != nil {
		logger.Fatal().Err(err).Msg("failed to create runtime directory")
	}

	// 2. Storage
	db, err := sqlite.NewDB(ctx, appCfg.GetDatabasePath())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage")
	}
	services = append(services, srv.NewCleanup(db.Close))

	// 3. Embedder + vector schema reconciliation. The declared width of the
	// vec0 tables must match the embedder; a mismatch rebuilds them.
	embedder := rag.NewEmbedder(embCfg)
	if err := reconcileVectors(ctx, db, embedder); err != nil {
		logger.Fatal().Err(err).Msg("failed to reconcile vector schema")
	}

	conversationsRepo := sqlite.NewConversationsRepo(db)
	messagesRepo := sqlite.NewMessagesRepo(db)
	knowledgeRepo := sqlite.NewKnowledgeRepo(db)

	// 4. Background workers + retrieval
	pool := worker.NewPool(0, 0)
	services = append(services, pool)

	index := retrieval.NewIndex(embedder, messagesRepo, knowledgeRepo, pool)

	// 5. Sessions + persistence
	store := session.NewStore(appCfg.SessionTTL, appCfg.SweepInterval)
	services = append(services, store)

	persistor := persist.NewPersistor(conversationsRepo, messagesRepo, index, store)

	// 6. MCP & native tools
	mcpManager, err := initMCP(appCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize MCP manager")
	}
	services = append(services, mcpManager)

	// 7. Personas + orchestrator
	personas, err := loadPersonas(appCfg.GetPersonasPath())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load personas")
	}
	logger.Info().Int("personas", len(personas)).Msg("personas loaded")

	runner := turn.NewRunner(
		personas,
		llm.NewFactory(llmCfg),
		store,
		queue.New(),
		prompt.NewAssembler(appCfg.HistoryCap, appCfg.HistoryKeep),
		index,
		agent.NewAgent(mcpManager),
		persistor,
		turn.Config{
			RetrievalLimit:     appCfg.RetrievalLimit,
			RetrievalThreshold: float32(appCfg.RetrievalThreshold),
		},
	)

	// 8. Transports
	services = append(services, httpapi.NewServer(config.NewServerConfig(ctx), runner))

	if appCfg.EnableTelegram {
		tgCfg := config.NewTelegramConfig(ctx)
		bot, err := telegram.NewBot(ctx, tgCfg, runner)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize telegram bot")
		}
		services = append(services, bot)
	}

	return services
}

func reconcileVectors(ctx context.Context, db *sql.DB, embedder core.Embedder) error {
	dim, err := embedder.Dimension(ctx)
	if err != nil {
		return err
	}
	return sqlite.ReconcileVectorSchema(ctx, db, dim)
}

func initMCP(cfg *config.AppConfig) (*mcp.Manager, error) {
	mcpCfg, err := mcp.LoadConfig(cfg.GetMCPConfigPath())
	if err != nil {
		return nil, err
	}

	mgr := mcp.NewManager(mcpCfg)
	tools.NewFetch().Register(mgr)
	tools.NewPlan().Register(mgr)
	tools.NewClock().Register(mgr)
	return mgr, nil
}

// loadPersonas reads personas.json, seeding a single default persona on
// first run so the service starts usable.
func loadPersonas(path string) ([]core.Persona, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		defaults := []core.Persona{{
			Name:         "assistant",
			DisplayName:  "Assistant",
			SystemPrompt: "You are a helpful assistant.",
			Provider:     "openai",
			Model:        "gpt-4o-mini",
		}}
		data, err := json.MarshalIndent(defaults, "", "  ")
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, err
		}
	}
	return config.LoadPersonas(path)
}

func initEnv(ctx context.Context, runtimePath string) error {
	logger := log.FromCtx(ctx)
	envFile := filepath.Join(runtimePath, ".env")

	if _, err := os.Stat(envFile); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := godotenv.Load(envFile); err != nil {
		logger.Warn().Err(err).Str("path", envFile).Msg("failed to load .env file")
		return err
	}

	logger.Debug().Str("path", envFile).Msg("loaded .env file")
	return nil
}
