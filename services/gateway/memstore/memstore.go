// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package memstore is the gateway's content-addressed memory chain.
//
// Each entry chains an opaque value byte-for-byte under a lookup key, a
// knowledge type (fact, observation, inference, commitment), and a truth
// state. Reads resolve a key to its most recent entry; erasure redacts
// every entry recorded under the key and retracts its truth state, while
// the chain linkage of later entries stays verifiable.
package memstore

import (
	"errors"

	"github.com/AleutianAI/AleutianGate/pkg/chain"
	"github.com/AleutianAI/AleutianGate/services/gateway/datatypes"
)

// ErrNotFound is returned when a key has no recorded entry.
var ErrNotFound = errors.New("memstore: key not found")

// Store wraps a chain with memory-entry semantics. All synchronization
// lives in the chain; the store itself is stateless.
type Store struct {
	chain *chain.Chain
}

// New creates a memory store over ch.
func New(ch *chain.Chain) *Store {
	return &Store{chain: ch}
}

// Append chains a new entry. Type defaults to fact and truth state to
// asserted when the request leaves them unset; the value is chained as
// given, with no canonicalization, so what the client wrote is exactly
// what verification covers.
func (s *Store) Append(req datatypes.AppendMemoryRequest) (chain.Record, error) {
	memType := req.Type
	if memType == "" {
		memType = datatypes.MemoryFact
	}
	truth := datatypes.TruthAsserted
	if req.TruthState != nil {
		truth = *req.TruthState
	}

	return s.chain.Append(chain.Entry{
		Content:    req.Value,
		Key:        req.Key,
		Type:       string(memType),
		TruthState: &truth,
	})
}

// Get resolves key to its most recent entry, erased or not. Erased
// entries are still addressable by key; only their content is redacted.
func (s *Store) Get(key string) (chain.Record, error) {
	rec, ok := s.chain.LastByKey(key)
	if !ok {
		return chain.Record{}, ErrNotFound
	}
	return rec, nil
}

// List returns entries matching the filter in append order.
func (s *Store) List(f chain.Filter, limit, offset int) ([]chain.Record, int) {
	return s.chain.List(f, limit, offset)
}

// Erase redacts every entry recorded under key. Redacting all revisions,
// not just the head, is what makes the value unrecoverable from the
// chain. Returns ErrNotFound when the key was never written.
func (s *Store) Erase(key string) (int, error) {
	records, _ := s.chain.List(chain.Filter{Key: key}, 0, 0)
	if len(records) == 0 {
		// Nothing un-erased under the key; distinguish "never existed"
		// from "already redacted".
		if _, ok := s.chain.LastByKey(key); ok {
			return 0, nil
		}
		return 0, ErrNotFound
	}

	erased := 0
	for _, rec := range records {
		if err := s.chain.Erase(rec.Hash); err != nil {
			return erased, err
		}
		erased++
	}
	return erased, nil
}

// Verify walks the memory chain.
func (s *Store) Verify() chain.VerifyResult {
	return s.chain.Verify()
}

// Len reports the number of retained entries.
func (s *Store) Len() int {
	return s.chain.Len()
}
