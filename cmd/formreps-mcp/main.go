package main

import (
	"flag"
	"log/slog"
	"os"

	mcpserver "github.com/mark3labs/mcp-go/server"

	formmcp "github.com/claude/formreps/internal/mcp"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	baseURL := flag.String("url", "http://localhost:5000", "FormReps server base URL")
	apiKey := flag.String("api-key", os.Getenv("FORMREPS_SERVER_API_KEY"), "API key for protected endpoints")
	flag.Parse()

	// Stdout carries the MCP protocol, so logs go to stderr.
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	log.Info("FormReps MCP starting", "version", Version, "url", *baseURL)

	client := formmcp.NewHTTPClient(*baseURL, *apiKey)
	s := formmcp.New(client, Version, log)

	if err := mcpserver.ServeStdio(s); err != nil {
		log.Error("mcp server error", "error", err)
		os.Exit(1)
	}
}
