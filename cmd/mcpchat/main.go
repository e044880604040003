package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/kagent-dev/mcpchat/internal/config"
	"github.com/kagent-dev/mcpchat/internal/version"
	"github.com/kagent-dev/mcpchat/pkg/chat"
	"github.com/kagent-dev/mcpchat/pkg/logger"
	"github.com/kagent-dev/mcpchat/pkg/mcp"
	"github.com/kagent-dev/mcpchat/pkg/models"
	"github.com/kagent-dev/mcpchat/pkg/registry"
)

var rootCmd = &cobra.Command{
	Use:          "mcpchat",
	Short:        "Chat with an LLM that can call tools on MCP servers",
	SilenceUsage: true,
	RunE:         run,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.Get().String())
	},
}

func init() {
	config.AddFlags(rootCmd.Flags())
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	settings, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}

	log, zapLogger := logger.Setup(settings.LogLevel)
	defer func() { _ = zapLogger.Sync() }()

	ctx, stop := signal.NotifyContext(logr.NewContext(context.Background(), log), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	err = chatSession(ctx, settings)
	log.Info("Chat finished", "durationSeconds", time.Since(start).Seconds())
	if err != nil {
		log.Error(err, "Chat aborted")
	}
	return err
}

func chatSession(ctx context.Context, settings *config.Settings) error {
	log := logr.FromContextOrDiscard(ctx)

	services, err := registry.Load(settings.ConfigFile, settings.Service)
	if err != nil {
		return err
	}
	if len(services) == 0 {
		log.Info("No MCP services configured, chatting without tools", "config", settings.ConfigFile)
	}

	connector := mcp.NewConnector()
	cat, err := mcp.NewAggregator(connector).Aggregate(ctx, services)
	if err != nil {
		log.Info("Some MCP services were skipped", "reason", err.Error())
	}
	log.Info("Tools loaded", "services", len(services), "tools", cat.Len())

	backend, err := models.NewBackend(settings.ModelConfig(), log.WithName(settings.ModelType))
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrBackend, err)
	}

	console, err := chat.NewTerminalConsole(historyFile())
	if err != nil {
		return fmt.Errorf("failed to open console: %w", err)
	}
	defer console.Close()

	base := settings.SystemPrompt
	if base == "" {
		base = chat.DefaultSystemPrompt
	}

	loop := chat.NewLoop(chat.Options{
		Backend:      backend,
		Invoker:      mcp.NewInvoker(connector),
		Catalog:      cat,
		Services:     services,
		Console:      console,
		SystemPrompt: chat.BuildSystemPrompt(base, cat),
	})
	return loop.Run(ctx, settings.Query)
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	dir := filepath.Join(home, ".mcpchat")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ""
	}
	return filepath.Join(dir, "history")
}
