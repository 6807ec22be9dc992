package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/lei/screwpipe/pkg/orchestrator"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	// Load .env file (ignore error if file doesn't exist - env vars might be set externally)
	_ = godotenv.Load()

	// Determine config file paths from environment or use defaults
	configFile := os.Getenv("CONFIG_FILE")
	if configFile == "" {
		configFile = "configs/orchestrator.yaml"
	}
	registryFile := os.Getenv("REGISTRY_FILE")
	if registryFile == "" {
		registryFile = "configs/registry.yaml"
	}

	orc, err := orchestrator.NewFromConfig(configFile, registryFile)
	if err != nil {
		return err
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Start the orchestrator (blocks until shutdown)
	return orc.Start(ctx)
}
