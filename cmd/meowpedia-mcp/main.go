package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"meowpedia/internal/app"
	"meowpedia/internal/chat"
	"meowpedia/internal/config"
	"meowpedia/internal/mcpserver"
)

const version = "1.0.0"

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Debug(".env file not found", "err", err)
	}

	cfg := config.New()
	// stdout carries the protocol
	log.SetOutput(os.Stderr)
	app.SetupLogging(cfg)

	gw, _, err := app.NewGateway(cfg)
	if err != nil {
		log.Fatal("failed to build gateway", "err", err)
	}
	rec := app.NewRecorder(cfg)

	srv := mcpserver.New(chat.NewService(gw, rec, "mcp"))
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "meowpedia-mcp",
		Version: version,
	}, nil)
	srv.Register(server)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("meowpedia MCP server running on stdio", "provider", cfg.LLMProvider)
	if err := server.Run(ctx, mcp.NewStdioTransport()); err != nil && ctx.Err() == nil {
		log.Fatal("MCP server failed", "err", err)
	}
}
