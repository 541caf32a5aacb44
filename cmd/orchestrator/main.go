// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command orchestrator starts the folio orchestrator HTTP server.
//
// This is the main entry point for the containerized orchestrator service.
// It reads configuration from environment variables and starts the server.
//
// # Environment Variables
//
//   - ORCHESTRATOR_PORT: HTTP server port (default: 12210)
//   - OPENAI_API_KEY: Provider key for the model and the moderation gate
//   - OPENAI_MODEL: Chat model name (default: gpt-4o-mini)
//   - WEAVIATE_SERVICE_URL: Weaviate vector DB URL (optional)
//   - SEARCH_API_URL / SEARCH_API_KEY: Web search provider (optional)
//   - ALPHA_VANTAGE_KEY: Quote provider key (optional)
//   - REQUEST_TIMEOUT_SECONDS: Streaming turn deadline (default: 30)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (default: folio-otel-collector:4317)
//
// # Usage
//
//	# Build
//	go build -o orchestrator ./cmd/orchestrator
//
//	# Run
//	./orchestrator
//
//	# Or via container
//	podman-compose up orchestrator
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/AleutianAI/folio/services/orchestrator"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Build configuration from environment variables
	cfg := orchestrator.Config{
		Port:         getEnvInt("ORCHESTRATOR_PORT", 12210),
		WeaviateURL:  os.Getenv("WEAVIATE_SERVICE_URL"),
		OTelEndpoint: getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", "folio-otel-collector:4317"),
		SearchAPIURL: os.Getenv("SEARCH_API_URL"),
		SearchAPIKey: os.Getenv("SEARCH_API_KEY"),
		QuoteAPIKey:  os.Getenv("ALPHA_VANTAGE_KEY"),
	}

	slog.Info("Starting orchestrator",
		"port", cfg.Port,
		"weaviate_url", cfg.WeaviateURL,
		"web_search_configured", cfg.SearchAPIURL != "",
		"quotes_configured", cfg.QuoteAPIKey != "",
	)

	svc, err := orchestrator.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create orchestrator: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Orchestrator error: %v", err)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
