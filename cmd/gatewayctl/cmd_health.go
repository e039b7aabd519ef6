// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	healthURL     string        // Gateway base URL
	healthTimeout time.Duration // Probe budget
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe a running gateway's health endpoint",
	Long: `Fetches GET /health from a running gateway and pretty-prints it.

Exit status 1 when the gateway is unreachable or reports non-200, so
the command doubles as a liveness check in scripts.

Examples:
  gatewayctl health --url http://localhost:12290
  gatewayctl health --url https://gateway.internal --timeout 10s`,
	RunE: runHealthCommand,
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	healthCmd.Flags().StringVar(&healthURL, "url", "http://localhost:12290",
		"gateway base URL")
	healthCmd.Flags().DurationVar(&healthTimeout, "timeout", 5*time.Second,
		"probe timeout")
}

// =============================================================================
// COMMAND EXECUTION
// =============================================================================

func runHealthCommand(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var pretty json.RawMessage = body
	if indented, err := json.MarshalIndent(pretty, "", "  "); err == nil {
		body = indented
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(body))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway reported status %d", resp.StatusCode)
	}
	return nil
}
