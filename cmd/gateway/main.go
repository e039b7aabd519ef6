// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command gateway starts the AleutianGate trust-boundary HTTP server.
//
// This is the main entry point for the containerized gateway service.
// It reads configuration from environment variables and starts the
// server. Provider API keys never leave this process: agents
// authenticate with their own bearer tokens and the gateway injects
// upstream credentials server-side.
//
// # Environment Variables
//
//   - GATEWAY_BIND: listen address (default: 0.0.0.0)
//   - GATEWAY_PORT: HTTP server port (default: 12290)
//   - GATEWAY_AUTH_SECRET: HMAC key for bearer tokens (absent: dev mode)
//   - OPENAI_API_KEY, ANTHROPIC_API_KEY, GEMINI_API_KEY,
//     TOGETHER_API_KEY: provider credentials (each optional)
//   - OLLAMA_URL: local Ollama base URL (default: http://localhost:11434)
//   - AUDIT_JOURNAL, MEMORY_JOURNAL, TASK_JOURNAL: chain journals,
//     file path or badger://<dir> (each optional)
//   - GATEWAY_CONFIG: YAML overlay for limits, budgets, agent roster
//   - GATEWAY_REDIS_URL: external rate-limit counter store (optional)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: enables tracing when set
//
// # Usage
//
//	# Build
//	go build -o gateway ./cmd/gateway
//
//	# Run
//	GATEWAY_AUTH_SECRET=... ./gateway
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/mattn/go-isatty"

	"github.com/AleutianAI/AleutianGate/services/gateway"
)

// version is stamped via -ldflags at release builds.
var version = "dev"

func main() {
	// JSON logs for collectors, text when a human is watching.
	var handler slog.Handler
	if isatty.IsTerminal(os.Stderr.Fd()) {
		handler = slog.NewTextHandler(os.Stderr, nil)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, nil)
	}
	slog.SetDefault(slog.New(handler))

	cfg := gateway.Config{
		Bind:          getEnvString("GATEWAY_BIND", "0.0.0.0"),
		Port:          getEnvInt("GATEWAY_PORT", 12290),
		AuthSecret:    os.Getenv("GATEWAY_AUTH_SECRET"),
		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		AnthropicKey:  os.Getenv("ANTHROPIC_API_KEY"),
		GeminiKey:     os.Getenv("GEMINI_API_KEY"),
		TogetherKey:   os.Getenv("TOGETHER_API_KEY"),
		OllamaURL:     getEnvString("OLLAMA_URL", "http://localhost:11434"),
		AuditJournal:  os.Getenv("AUDIT_JOURNAL"),
		MemoryJournal: os.Getenv("MEMORY_JOURNAL"),
		TaskJournal:   os.Getenv("TASK_JOURNAL"),
		ConfigPath:    os.Getenv("GATEWAY_CONFIG"),
		RedisURL:      os.Getenv("GATEWAY_REDIS_URL"),
		OTelEndpoint:  os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		GinMode:       getEnvString("GIN_MODE", "release"),
		Version:       version,
	}

	slog.Info("Starting gateway",
		"bind", cfg.Bind,
		"port", cfg.Port,
		"version", cfg.Version,
	)

	// Default (no-op) extension options; enterprise builds pass custom
	// ServiceOptions here.
	svc, err := gateway.New(cfg, nil)
	if err != nil {
		log.Fatalf("Failed to create gateway: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Gateway error: %v", err)
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
