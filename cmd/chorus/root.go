package main

import (
	"context"
	"os"

	"github.com/sandevgo/chorus/internal/config"
	"github.com/sandevgo/chorus/pkg/log"
	"github.com/spf13/cobra"
)

var (
	debug bool
)

var rootCmd = &cobra.Command{
	Use:   "chorus",
	Short: "Chorus is a persona-routed conversational AI service",
	Long:  `Chorus routes chat turns to named AI personas, enriched with retrieved history and ingested knowledge.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// Global flags available to all subcommands
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", config.IsDebug(), "enable debug logging")
}

func setupLogger(ctx context.Context) (context.Context, func()) {
	isDebug := debug || config.IsDebug()
	return log.NewContextWithLogger(ctx, isDebug)
}
