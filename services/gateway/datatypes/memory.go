// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "github.com/AleutianAI/AleutianGate/pkg/chain"

// =============================================================================
// Memory Enumerations
// =============================================================================

// MemoryType classifies what kind of knowledge a memory entry carries.
type MemoryType string

const (
	MemoryFact        MemoryType = "fact"
	MemoryObservation MemoryType = "observation"
	MemoryInference   MemoryType = "inference"
	MemoryCommitment  MemoryType = "commitment"
)

// Valid reports whether t is a known memory type.
func (t MemoryType) Valid() bool {
	switch t {
	case MemoryFact, MemoryObservation, MemoryInference, MemoryCommitment:
		return true
	}
	return false
}

// Truth states for memory entries. Erasure retracts an entry to
// TruthRetracted regardless of its previous state.
const (
	TruthAsserted  = 1
	TruthUnknown   = 0
	TruthRetracted = -1
)

// ValidTruthState reports whether v is one of {+1, 0, -1}.
func ValidTruthState(v int) bool {
	return v >= TruthRetracted && v <= TruthAsserted
}

// =============================================================================
// Memory Request / Response Types
// =============================================================================

// AppendMemoryRequest is the body of POST /memory.
//
// Value is opaque to the gateway; it is chained byte-for-byte. Type
// defaults to fact and truth_state to asserted when omitted.
type AppendMemoryRequest struct {
	Key        string     `json:"key"`
	Value      string     `json:"value"`
	Type       MemoryType `json:"type,omitempty"`
	TruthState *int       `json:"truth_state,omitempty"`
}

// Validate returns wire-level error strings for an invalid request.
func (r *AppendMemoryRequest) Validate() []string {
	var msgs []string
	if r.Key == "" {
		msgs = append(msgs, "key is required")
	}
	if r.Value == "" {
		msgs = append(msgs, "value is required")
	}
	if r.Type != "" && !r.Type.Valid() {
		msgs = append(msgs, "type must be one of fact, observation, inference, commitment")
	}
	if r.TruthState != nil && !ValidTruthState(*r.TruthState) {
		msgs = append(msgs, "truth_state must be one of -1, 0, 1")
	}
	return msgs
}

// MemoryListResponse is the body of GET /memory.
//
// Entries are raw chain records: hash linkage included, erased entries
// excluded unless explicitly requested.
type MemoryListResponse struct {
	Entries []chain.Record `json:"entries"`
	Total   int            `json:"total"`
}
