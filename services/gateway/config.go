// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gateway

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianGate/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianGate/services/gateway/middleware"
)

// =============================================================================
// Configuration
// =============================================================================

// Config holds gateway configuration options.
//
// Values are typically populated from environment variables by
// cmd/gateway, or programmatically for testing. All fields are optional;
// New() applies defaults for zero values. An empty AuthSecret selects
// development mode, which accepts every request as an anonymous admin
// and is announced loudly at startup.
type Config struct {
	// Bind is the listen address. Default: "0.0.0.0".
	Bind string

	// Port is the HTTP server port. Default: 12290.
	Port int

	// AuthSecret is the HMAC key bearer tokens are verified against.
	// Empty selects development mode.
	AuthSecret string

	// Provider credentials. A provider with no credential is simply
	// not bound; requests routed to it yield provider_unavailable.
	OpenAIKey    string
	AnthropicKey string
	GeminiKey    string
	TogetherKey  string

	// OllamaURL is the local Ollama base URL. Default:
	// "http://localhost:11434". Ollama needs no credential and is
	// always bound.
	OllamaURL string

	// Journal references for the three hash chains. Each is either a
	// file path, "badger://<dir>", or empty for memory-only operation.
	// A journal-less audit chain is ring-bounded to the most recent
	// 1000 records.
	AuditJournal  string
	MemoryJournal string
	TaskJournal   string

	// RedisURL switches the rate-limit counter store from in-process
	// memory to Redis, for multi-instance deployments.
	RedisURL string

	// OTelEndpoint enables OpenTelemetry tracing when set.
	OTelEndpoint string

	// ConfigPath points at an optional YAML overlay for rate limits,
	// provider binding budgets, and the agent roster.
	ConfigPath string

	// GinMode sets the Gin framework mode ("debug", "release", "test").
	GinMode string

	// Version is reported by /health.
	Version string
}

// auditRingSize bounds the journal-less audit chain.
const auditRingSize = 1000

func applyConfigDefaults(cfg Config) Config {
	if cfg.Bind == "" {
		cfg.Bind = "0.0.0.0"
	}
	if cfg.Port == 0 {
		cfg.Port = 12290
	}
	if cfg.OllamaURL == "" {
		cfg.OllamaURL = "http://localhost:11434"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	return cfg
}

// =============================================================================
// YAML Overlay
// =============================================================================

// bindingBudget is the per-provider admission budget from the overlay.
type bindingBudget struct {
	MaxConcurrent     int64   `yaml:"max_concurrent"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// overlay is the GATEWAY_CONFIG file schema. Everything is optional;
// absent sections keep their built-in defaults.
type overlay struct {
	RateLimits map[string]struct {
		Requests      int64 `yaml:"requests"`
		WindowSeconds int   `yaml:"window_seconds"`
	} `yaml:"rate_limits"`

	Providers map[string]bindingBudget `yaml:"providers"`

	Agents []datatypes.Agent `yaml:"agents"`
}

// defaultBudget is the admission budget for providers the overlay does
// not mention.
var defaultBudget = bindingBudget{MaxConcurrent: 8, RequestsPerSecond: 10}

// loadOverlay reads and parses the YAML overlay at path. An empty path
// returns an empty overlay.
func loadOverlay(path string) (overlay, error) {
	var o overlay
	if path == "" {
		return o, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return o, fmt.Errorf("read config overlay: %w", err)
	}
	if err := yaml.Unmarshal(data, &o); err != nil {
		return o, fmt.Errorf("parse config overlay: %w", err)
	}
	return o, nil
}

// limits merges the overlay's rate_limits section over the defaults.
func (o overlay) limits() map[string]middleware.Limit {
	merged := middleware.DefaultLimits()
	for class, l := range o.RateLimits {
		if l.Requests <= 0 || l.WindowSeconds <= 0 {
			continue
		}
		merged[class] = middleware.Limit{
			Requests: l.Requests,
			Window:   time.Duration(l.WindowSeconds) * time.Second,
		}
	}
	return merged
}

// budget returns the admission budget for one provider identity.
func (o overlay) budget(provider string) bindingBudget {
	b, ok := o.Providers[provider]
	if !ok {
		return defaultBudget
	}
	if b.MaxConcurrent <= 0 {
		b.MaxConcurrent = defaultBudget.MaxConcurrent
	}
	if b.RequestsPerSecond <= 0 {
		b.RequestsPerSecond = defaultBudget.RequestsPerSecond
	}
	return b
}
