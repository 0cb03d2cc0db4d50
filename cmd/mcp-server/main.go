package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/trial-eligibility-server/internal/config"
	"github.com/trial-eligibility-server/internal/mcp"
)

func main() {
	cfg := config.LoadLiteConfig()

	// Create MCP server
	mcpServer, err := mcp.NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create MCP server: %v", err)
	}
	defer mcpServer.Close()

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("Shutdown signal received, gracefully shutting down MCP server...")
		cancel()
	}()

	// Serve MCP over stdio
	if err := mcpServer.Start(ctx); err != nil {
		log.Fatalf("MCP server failed: %v", err)
	}

	log.Println("Trial eligibility MCP server stopped")
}
