package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mohitpaddhariya/mcp-chat-client/internal/mcp"
	"github.com/mohitpaddhariya/mcp-chat-client/pkg/config"
	"github.com/mohitpaddhariya/mcp-chat-client/pkg/logger"
)

// Smoke check for MCP server startup: launches the selected server the same
// way a chat turn would and prints its tool catalog.
//
// Usage: go run scripts/probe_mcp.go -server filesystem
func main() {
	serverName := flag.String("server", "filesystem", "Server type to probe")
	timeout := flag.Duration("timeout", 30*time.Second, "Probe timeout")
	flag.Parse()

	if err := logger.Init("development"); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	serverType, ok := mcp.ParseServerType(*serverName)
	if !ok {
		log.Fatal("Unknown server type", zap.String("server", *serverName))
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	specs := mcp.ResolveServerSpecs([]mcp.ServerType{serverType}, cfg.FilesystemAllowedPath)
	session, err := mcp.NewLauncher().Launch(ctx, specs)
	if err != nil {
		log.Fatal("Launch failed", zap.Error(err))
	}
	defer session.Close()

	tools := session.Tools()
	if len(tools) == 0 {
		log.Fatal("Server started but exposed no tools", zap.String("server", *serverName))
	}

	fmt.Printf("Server %q is up with %d tools:\n", *serverName, len(tools))
	for _, tool := range tools {
		fmt.Printf("  %-24s %s\n", tool.Name, tool.Description)
	}
}
