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
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianGate/pkg/token"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	mintSubject string        // Token subject (agent identity)
	mintRole    string        // Token role claim
	mintTTL     time.Duration // Token lifetime
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Agent bearer token operations",
}

// mintCmd mints an HS256 bearer token signed with the gateway's shared
// secret. The secret comes from GATEWAY_AUTH_SECRET, same as the
// server, so a token minted here verifies against the running gateway.
var mintCmd = &cobra.Command{
	Use:   "mint",
	Short: "Mint an agent bearer token",
	Long: `Mints an HS256 bearer token for an agent.

The signing secret is read from GATEWAY_AUTH_SECRET. The token carries
the subject, role, and expiry; hand it to the agent, never the secret.

Examples:
  gatewayctl token mint --sub agent-7 --role agent --ttl 24h
  gatewayctl token mint --sub ops --role admin --ttl 30m`,
	RunE: runMintCommand,
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	mintCmd.Flags().StringVar(&mintSubject, "sub", "", "token subject (required)")
	mintCmd.Flags().StringVar(&mintRole, "role", "agent", "token role claim")
	mintCmd.Flags().DurationVar(&mintTTL, "ttl", 24*time.Hour, "token lifetime")
	_ = mintCmd.MarkFlagRequired("sub")

	tokenCmd.AddCommand(mintCmd)
}

// =============================================================================
// COMMAND EXECUTION
// =============================================================================

func runMintCommand(cmd *cobra.Command, _ []string) error {
	secret := os.Getenv("GATEWAY_AUTH_SECRET")
	if secret == "" {
		return fmt.Errorf("GATEWAY_AUTH_SECRET is not set")
	}

	signed, err := token.Mint([]byte(secret), mintSubject, mintRole, mintTTL)
	if err != nil {
		return fmt.Errorf("mint token: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), signed)
	return nil
}
