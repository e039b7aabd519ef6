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
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianGate/pkg/chain"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var verifyJournal string // Journal reference: file path or badger://<dir>

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// verifyCmd replays a chain journal and walks its hash linkage without a
// running gateway. Exit status 1 when the chain fails verification, so
// the command slots into cron and CI.
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a hash-chain journal offline",
	Long: `Replays a journal and verifies the hash chain it persists.

Checks prev_hash linkage for every record and recomputes content hashes
for records that have not been redactively erased. The first deviation
is reported with the offending hash.

Examples:
  gatewayctl verify --journal /var/lib/gateway/audit.jsonl
  gatewayctl verify --journal badger:///var/lib/gateway/memory`,
	RunE: runVerifyCommand,
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	verifyCmd.Flags().StringVar(&verifyJournal, "journal", "",
		"journal reference: file path or badger://<dir> (required)")
	_ = verifyCmd.MarkFlagRequired("journal")
}

// =============================================================================
// COMMAND EXECUTION
// =============================================================================

func runVerifyCommand(cmd *cobra.Command, _ []string) error {
	journal, err := chain.Open(verifyJournal, nil)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	if journal == nil {
		return fmt.Errorf("empty journal reference")
	}
	defer journal.Close()

	records, err := journal.Replay()
	if err != nil {
		return fmt.Errorf("replay journal: %w", err)
	}

	origin := chain.Genesis
	if len(records) > 0 {
		origin = records[0].PrevHash
	}
	result := chain.VerifyRecords(records, origin)

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	if !result.Valid {
		return fmt.Errorf("chain verification failed at %s", result.FirstInvalid)
	}
	return nil
}
