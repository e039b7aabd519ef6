// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command gatewayctl is the operator CLI for AleutianGate.
//
// It covers the three chores a gateway operator does outside the server
// process: minting agent bearer tokens, verifying a chain journal
// offline, and probing a running gateway's health endpoint.
//
// # Usage
//
//	gatewayctl token mint --sub agent-7 --role agent --ttl 24h
//	gatewayctl verify --journal /var/lib/gateway/audit.jsonl
//	gatewayctl verify --journal badger:///var/lib/gateway/memory
//	gatewayctl health --url http://localhost:12290
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "gatewayctl",
	Short: "Operator CLI for the AleutianGate trust-boundary gateway",
	Long: `gatewayctl manages a running or offline AleutianGate deployment.

Subcommands:
  token mint   Mint an agent bearer token (HS256, shared secret)
  verify       Verify a hash-chain journal offline
  health       Probe a running gateway's health endpoint`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(healthCmd)
}
