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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianGate/services/gateway/middleware"
)

// =============================================================================
// Defaults Tests
// =============================================================================

func TestApplyConfigDefaults(t *testing.T) {
	cfg := applyConfigDefaults(Config{})

	assert.Equal(t, "0.0.0.0", cfg.Bind)
	assert.Equal(t, 12290, cfg.Port)
	assert.Equal(t, "http://localhost:11434", cfg.OllamaURL)
	assert.Equal(t, "dev", cfg.Version)
}

func TestApplyConfigDefaults_KeepsExplicitValues(t *testing.T) {
	cfg := applyConfigDefaults(Config{Bind: "127.0.0.1", Port: 9000, Version: "1.4.0"})

	assert.Equal(t, "127.0.0.1", cfg.Bind)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "1.4.0", cfg.Version)
}

// =============================================================================
// Overlay Tests
// =============================================================================

func writeOverlay(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadOverlay_EmptyPath(t *testing.T) {
	o, err := loadOverlay("")
	require.NoError(t, err)
	assert.Nil(t, o.RateLimits)
	assert.Nil(t, o.Agents)
}

func TestLoadOverlay_MissingFile(t *testing.T) {
	_, err := loadOverlay(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadOverlay_MalformedYAML(t *testing.T) {
	path := writeOverlay(t, "rate_limits: [not a map")
	_, err := loadOverlay(path)
	assert.Error(t, err)
}

func TestLoadOverlay_FullDocument(t *testing.T) {
	path := writeOverlay(t, `
rate_limits:
  chat:
    requests: 10
    window_seconds: 30
providers:
  openai:
    max_concurrent: 4
    requests_per_second: 2.5
agents:
  - id: planner
    name: Planner
    role: planning
    model: gpt-4o
`)

	o, err := loadOverlay(path)
	require.NoError(t, err)

	require.Len(t, o.Agents, 1)
	assert.Equal(t, "planner", o.Agents[0].ID)

	limits := o.limits()
	assert.Equal(t, middleware.Limit{Requests: 10, Window: 30 * time.Second},
		limits[middleware.ClassChat])
	// Untouched classes keep the stock budgets.
	assert.Equal(t, int64(120), limits[middleware.ClassMemory].Requests)

	b := o.budget("openai")
	assert.Equal(t, int64(4), b.MaxConcurrent)
	assert.Equal(t, 2.5, b.RequestsPerSecond)
}

func TestOverlayLimits_IgnoresNonPositiveEntries(t *testing.T) {
	path := writeOverlay(t, `
rate_limits:
  chat:
    requests: 0
    window_seconds: 60
  memory:
    requests: 5
    window_seconds: 0
`)

	o, err := loadOverlay(path)
	require.NoError(t, err)

	limits := o.limits()
	assert.Equal(t, int64(60), limits[middleware.ClassChat].Requests)
	assert.Equal(t, int64(120), limits[middleware.ClassMemory].Requests)
}

func TestOverlayBudget_Defaults(t *testing.T) {
	var o overlay

	b := o.budget("anthropic")
	assert.Equal(t, defaultBudget, b)
}

func TestOverlayBudget_PartialEntryBackfilled(t *testing.T) {
	path := writeOverlay(t, `
providers:
  gemini:
    max_concurrent: 2
`)

	o, err := loadOverlay(path)
	require.NoError(t, err)

	b := o.budget("gemini")
	assert.Equal(t, int64(2), b.MaxConcurrent)
	assert.Equal(t, defaultBudget.RequestsPerSecond, b.RequestsPerSecond)
}
