// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package chain implements a tamper-evident append-only record log.
//
// Records are linked by SHA-256: each record's hash covers its
// predecessor's hash, its content, and its append timestamp. Altering any
// historical record breaks recomputation for that record and every
// successor, which Verify detects. The audit log, the memory store, and
// the task lineage each own an independent Chain; mixing subsystems in
// one chain would let one subsystem's appends invalidate another's
// verification.
//
// # Record Shape
//
// A record's digest input is exactly (prev_hash, content, timestamp_ns).
// Content is an opaque string; callers with structured payloads must
// canonicalize before appending (the audit and task subsystems use
// RFC 8785 JSON) so verification is stable across processes. The key,
// type, and truth_state fields are sidecar labels: they support keyed
// lookup and filtering, are persisted with the record, and are NOT
// covered by the digest.
//
// # Redactive Erasure
//
// Erase replaces a record's content with "[ERASED:<16-hex>]" where the
// hex is the truncated SHA-256 of the original content. The record's
// hash and prev_hash are never rewritten, so the linkage of successor
// records stays intact; Verify skips recomputation for erased records
// but still checks their linkage.
//
// # Durability
//
// A Chain is in-memory first. With a Journal configured, every append is
// persisted inside the append critical section so on-disk order equals
// in-memory order, and the chain is rehydrated by replay on startup.
// Without a journal, an optional MaxRecords bound turns the chain into a
// ring of the most recent records.
package chain

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"
)

// Genesis is the prev_hash of every chain's first record.
const Genesis = "GENESIS"

var (
	// ErrNotFound is returned when no record carries the requested hash.
	ErrNotFound = errors.New("chain: record not found")

	// ErrClosed is returned for operations on a closed chain.
	ErrClosed = errors.New("chain: closed")
)

// =============================================================================
// Record
// =============================================================================

// Record is one link of a chain. Field order here is the journal's
// canonical line order; do not reorder.
type Record struct {
	// Hash is the 64-hex SHA-256 over prev_hash, content, and
	// timestamp_ns (see Digest).
	Hash string `json:"hash"`

	// PrevHash is the predecessor's Hash, or Genesis at index 0.
	PrevHash string `json:"prev_hash"`

	// TimestampNS is epoch nanoseconds, non-decreasing within a chain.
	TimestampNS int64 `json:"timestamp_ns"`

	// Content is the record payload. Replaced by the erase marker when
	// Erased is true.
	Content string `json:"content"`

	// Key is an optional lookup label (memory key, task ID). Survives
	// erasure so keyed access keeps working after redaction.
	Key string `json:"key,omitempty"`

	// Type is an optional kind label (memory type, lifecycle event name).
	Type string `json:"type,omitempty"`

	// TruthState is the memory-entry assertion state (+1 true, 0
	// unknown, -1 false/retracted). Nil for non-memory records.
	TruthState *int `json:"truth_state,omitempty"`

	// Erased marks redacted records.
	Erased bool `json:"erased,omitempty"`
}

// Entry is the caller-supplied part of a record.
type Entry struct {
	Content    string
	Key        string
	Type       string
	TruthState *int
}

// Filter selects records for List. Zero-value fields match everything.
// Erased records are excluded unless IncludeErased is set.
type Filter struct {
	Key           string
	Type          string
	IncludeErased bool
}

// VerifyResult reports the outcome of a chain walk.
type VerifyResult struct {
	Valid        bool   `json:"valid"`
	Total        int    `json:"total"`
	Checked      int    `json:"checked"`
	FirstInvalid string `json:"first_invalid,omitempty"`
}

// =============================================================================
// Digest
// =============================================================================

// Digest computes the chained fingerprint for a record:
// hex(SHA-256(prev_hash || ":" || content || ":" || timestamp_ns)).
// Deterministic in its inputs; used identically on append and verify.
func Digest(prevHash, content string, timestampNS int64) string {
	h := sha256.New()
	h.Write([]byte(prevHash))
	h.Write([]byte(":"))
	h.Write([]byte(content))
	h.Write([]byte(":"))
	h.Write([]byte(strconv.FormatInt(timestampNS, 10)))
	return hex.EncodeToString(h.Sum(nil))
}

// EraseMarker returns the redaction placeholder for content: the literal
// "[ERASED:" plus the first 16 hex characters of SHA-256(content).
func EraseMarker(content string) string {
	sum := sha256.Sum256([]byte(content))
	return "[ERASED:" + hex.EncodeToString(sum[:])[:16] + "]"
}

// VerifyRecords walks records checking linkage against origin and
// recomputing hashes for non-erased records. Shared by Chain.Verify and
// offline journal verification.
func VerifyRecords(records []Record, origin string) VerifyResult {
	result := VerifyResult{Valid: true, Total: len(records)}

	prev := origin
	for i := range records {
		rec := &records[i]
		if rec.PrevHash != prev {
			result.Valid = false
			result.FirstInvalid = rec.Hash
			return result
		}
		if !rec.Erased && Digest(rec.PrevHash, rec.Content, rec.TimestampNS) != rec.Hash {
			result.Valid = false
			result.FirstInvalid = rec.Hash
			return result
		}
		result.Checked++
		prev = rec.Hash
	}
	return result
}

// =============================================================================
// Chain
// =============================================================================

// Options configures a Chain.
type Options struct {
	// Journal persists appends and serves replay. Optional.
	Journal Journal

	// MaxRecords bounds the in-memory chain to the most recent N
	// records. 0 means unbounded. Intended for journal-less chains;
	// verification covers the retained suffix.
	MaxRecords int

	// Logger receives journal degradation warnings. Defaults to
	// slog.Default().
	Logger *slog.Logger

	// Now overrides the clock, for tests. Must return epoch nanoseconds.
	Now func() int64
}

// Chain is a hash-linked append-only log. Safe for concurrent use: a
// single critical section serializes append and erase (including the
// journal write, so persisted order equals in-memory order); readers
// take a shared lock and never observe a record without its predecessor.
type Chain struct {
	mu      sync.RWMutex
	records []Record
	byHash  map[string]int

	// origin is the prev_hash expected of records[0]. Genesis until
	// the ring bound drops early records, after which it advances.
	origin string

	lastNS  int64
	journal Journal
	maxRecs int
	logger  *slog.Logger
	now     func() int64
	closed  bool
}

// New creates a Chain, replaying the journal when one is configured.
func New(opts Options) (*Chain, error) {
	c := &Chain{
		byHash:  make(map[string]int),
		origin:  Genesis,
		journal: opts.Journal,
		maxRecs: opts.MaxRecords,
		logger:  opts.Logger,
		now:     opts.Now,
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.now == nil {
		c.now = func() int64 { return time.Now().UnixNano() }
	}

	if c.journal != nil {
		records, err := c.journal.Replay()
		if err != nil {
			return nil, fmt.Errorf("replay journal: %w", err)
		}
		c.records = records
		for i := range records {
			c.byHash[records[i].Hash] = i
		}
		if len(records) > 0 {
			c.origin = records[0].PrevHash
			c.lastNS = records[len(records)-1].TimestampNS
		}
	}

	return c, nil
}

// Append creates the next record from entry and persists it. The clock
// is clamped to last+1 on regression so timestamps stay monotone.
//
// On journal failure the in-memory append stands and the error is
// returned alongside the record; callers choose between failing the
// operation and degrading to memory-only durability.
func (c *Chain) Append(entry Entry) (Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return Record{}, ErrClosed
	}

	ns := c.now()
	if ns <= c.lastNS {
		ns = c.lastNS + 1
	}
	c.lastNS = ns

	prev := c.origin
	if n := len(c.records); n > 0 {
		prev = c.records[n-1].Hash
	}

	rec := Record{
		Hash:        Digest(prev, entry.Content, ns),
		PrevHash:    prev,
		TimestampNS: ns,
		Content:     entry.Content,
		Key:         entry.Key,
		Type:        entry.Type,
		TruthState:  entry.TruthState,
	}

	c.records = append(c.records, rec)
	c.byHash[rec.Hash] = len(c.records) - 1

	if c.maxRecs > 0 && len(c.records) > c.maxRecs {
		dropped := c.records[0]
		c.records = c.records[1:]
		delete(c.byHash, dropped.Hash)
		for h, i := range c.byHash {
			c.byHash[h] = i - 1
		}
		c.origin = dropped.Hash
	}

	if c.journal != nil {
		if err := c.journal.Append(rec); err != nil {
			c.logger.Warn("journal append failed, record held in memory only",
				"hash", rec.Hash, "error", err)
			return rec, fmt.Errorf("journal append: %w", err)
		}
	}

	return rec, nil
}

// Get returns the record with the given hash.
func (c *Chain) Get(hash string) (Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i, ok := c.byHash[hash]
	if !ok {
		return Record{}, false
	}
	return c.records[i], true
}

// LastByKey returns the most recent record labeled with key.
func (c *Chain) LastByKey(key string) (Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := len(c.records) - 1; i >= 0; i-- {
		if c.records[i].Key == key {
			return c.records[i], true
		}
	}
	return Record{}, false
}

// List returns records matching filter in append order, paginated by
// limit and offset, plus the total match count before pagination.
// limit <= 0 means no limit.
func (c *Chain) List(filter Filter, limit, offset int) ([]Record, int) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var matched []Record
	for i := range c.records {
		rec := &c.records[i]
		if rec.Erased && !filter.IncludeErased {
			continue
		}
		if filter.Key != "" && rec.Key != filter.Key {
			continue
		}
		if filter.Type != "" && rec.Type != filter.Type {
			continue
		}
		matched = append(matched, *rec)
	}

	total := len(matched)
	if offset > total {
		offset = total
	}
	matched = matched[offset:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, total
}

// Erase redacts the record with the given hash: content becomes the
// erase marker, truth_state (when present) becomes -1, and the erased
// flag is set. Hash and prev_hash are preserved so successor linkage
// remains verifiable. Returns ErrNotFound for unknown hashes; erasing
// an already-erased record is a no-op.
func (c *Chain) Erase(hash string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	i, ok := c.byHash[hash]
	if !ok {
		return ErrNotFound
	}
	rec := &c.records[i]
	if rec.Erased {
		return nil
	}

	rec.Content = EraseMarker(rec.Content)
	rec.Erased = true
	if rec.TruthState != nil {
		retracted := -1
		rec.TruthState = &retracted
	}

	if c.journal != nil {
		if err := c.journal.Erase(i, *rec); err != nil {
			c.logger.Warn("journal erase failed, redaction held in memory only",
				"hash", hash, "error", err)
			return fmt.Errorf("journal erase: %w", err)
		}
	}
	return nil
}

// Verify walks the chain per VerifyRecords, starting from this chain's
// origin (Genesis, or the advanced origin of a ring-bounded chain).
func (c *Chain) Verify() VerifyResult {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return VerifyRecords(c.records, c.origin)
}

// Len returns the number of retained records.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// Head returns the hash the next record will link to.
func (c *Chain) Head() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if n := len(c.records); n > 0 {
		return c.records[n-1].Hash
	}
	return c.origin
}

// Close releases the journal. Subsequent appends and erasures fail with
// ErrClosed; reads keep working on the retained records.
func (c *Chain) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	if c.journal != nil {
		return c.journal.Close()
	}
	return nil
}
