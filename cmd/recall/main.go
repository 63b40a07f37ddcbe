// Binary recall is a local-first memory server speaking the Model Context
// Protocol over stdio.
//
// Usage in .mcp.json:
//
//	{
//	  "mcpServers": {
//	    "recall": {
//	      "type": "stdio",
//	      "command": "recall"
//	    }
//	  }
//	}
package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/nevindra/recall/internal/app"
	"github.com/nevindra/recall/internal/config"
)

func main() {
	// stdout carries the protocol; everything else goes to stderr.
	log.SetOutput(os.Stderr)

	// 1. Load config
	cfg := config.Load(os.Getenv("RECALL_CONFIG"))

	level := slog.LevelInfo
	if os.Getenv("RECALL_DEBUG") != "" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	// 2. Build the server
	a, err := app.Build(context.Background(), cfg, logger)
	if err != nil {
		log.Fatalf("recall: %v", err)
	}

	// 3. Serve until stdin closes or a signal arrives
	if err := a.RunWithSignal(); err != nil {
		log.Fatalf("recall: %v", err)
	}
}
