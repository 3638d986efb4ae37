package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/sandevgo/chorus/internal/config"
	"github.com/sandevgo/chorus/internal/providers/rag"
	"github.com/sandevgo/chorus/internal/service/retrieval"
	"github.com/sandevgo/chorus/internal/storage/sqlite"
	"github.com/sandevgo/chorus/pkg/log"
	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [dir]",
	Short: "Ingest a directory of documents into the knowledge base",
	Long:  `Chunks every regular file in the directory, embeds the chunks and replaces each file's stored knowledge. Defaults to the knowledge directory under the runtime path.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		var flushLog func()
		ctx, flushLog = setupLogger(ctx)
		defer flushLog()
		logger := log.FromCtx(ctx)

		if err := initEnv(ctx, config.GetRuntimePath()); err != nil {
			return err
		}
		appCfg := config.NewAppConfig(ctx)
		embCfg := config.NewEmbeddingConfig(ctx)

		dir := appCfg.GetKnowledgePath()
		if len(args) == 1 {
			dir = args[0]
		}

		db, err := sqlite.NewDB(ctx, appCfg.GetDatabasePath())
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()

		embedder := rag.NewEmbedder(embCfg)
		if err := reconcileVectors(ctx, db, embedder); err != nil {
			return fmt.Errorf("reconcile vector schema: %w", err)
		}

		index := retrieval.NewIndex(embedder, sqlite.NewMessagesRepo(db), sqlite.NewKnowledgeRepo(db), nil)

		reports, err := index.IngestDir(ctx, dir)
		if err != nil {
			return err
		}

		failed := 0
		for _, r := range reports {
			if r.Err != nil {
				failed++
				fmt.Printf("FAIL  %s: %v\n", r.Source, r.Err)
				continue
			}
			fmt.Printf("ok    %s (%d chunks)\n", r.Source, r.Chunks)
		}
		fmt.Printf("\n%d file(s) ingested, %d failed\n", len(reports)-failed, failed)

		if failed > 0 {
			logger.Warn().Int("failed", failed).Msg("ingestion finished with failures")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}
