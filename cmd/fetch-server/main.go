package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs"

	"github.com/kagent-dev/mcpchat/internal/version"
	"github.com/kagent-dev/mcpchat/pkg/fetch"
	"github.com/kagent-dev/mcpchat/pkg/logger"
)

var (
	port      int
	stdio     bool
	logLevel  string
	timeout   time.Duration
	userAgent string

	Name = "fetch-server"
)

var rootCmd = &cobra.Command{
	Use:   "fetch-server",
	Short: "MCP server exposing a fetch tool that returns web pages as Markdown",
	Run:   run,
}

func init() {
	rootCmd.Flags().IntVarP(&port, "port", "p", 8000, "Port to run the server on")
	rootCmd.Flags().BoolVar(&stdio, "stdio", false, "Use stdio for communication instead of HTTP")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	rootCmd.Flags().DurationVar(&timeout, "timeout", fetch.DefaultTimeout, "Timeout for each page fetch")
	rootCmd.Flags().StringVar(&userAgent, "user-agent", fetch.DefaultUserAgent, "User-Agent sent when fetching pages")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) {
	logger.Init(logLevel)
	defer logger.Sync()

	info := version.Get()
	logger.Get().Info("Starting "+Name, "version", info.Version, "git_commit", info.GitCommit, "build_date", info.BuildDate)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logr.NewContext(ctx, logger.Get())

	mcp := server.NewMCPServer(Name, info.Version)
	metrics := fetch.NewMetrics()
	fetcher := fetch.NewFetcher(fetch.WithTimeout(timeout), fetch.WithUserAgent(userAgent))
	fetch.NewTool(fetcher, metrics, logger.Get().WithName("fetch")).Register(mcp)

	if stdio {
		runStdioServer(ctx, mcp)
	} else {
		httpServer := fetch.NewHTTPServer(fetch.ServerConfig{
			BindAddr: fmt.Sprintf(":%d", port),
			MCP:      mcp,
			Metrics:  metrics,
		})
		if err := httpServer.Run(ctx); err != nil {
			logger.Get().Error(err, "HTTP server failed")
			logger.Sync()
			os.Exit(1)
		}
	}
	logger.Get().Info("Server shutdown complete")
}

func runStdioServer(ctx context.Context, mcp *server.MCPServer) {
	logger.Get().Info("Running fetch server on stdio")
	stdioServer := server.NewStdioServer(mcp)
	if err := stdioServer.Listen(ctx, os.Stdin, os.Stdout); err != nil {
		logger.Get().Info("Stdio server stopped", "error", err.Error())
	}
}
