// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package chain

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// maxJournalLine bounds a single journal line on replay. Content is
// capped well below this by the gateway's request body limit.
const maxJournalLine = 4 * 1024 * 1024

// Journal persists chain records. Implementations must keep records in
// append order; Replay returns them in that order.
//
// Append is called inside the chain's append critical section, so
// implementations need no ordering logic of their own, only atomicity
// of the single write.
type Journal interface {
	// Append persists one record at the journal's end.
	Append(rec Record) error

	// Erase replaces the record at index with its redacted form. The
	// original content must not remain recoverable from the backend.
	Erase(index int, rec Record) error

	// Replay returns all persisted records in order. A missing backend
	// yields an empty slice, not an error.
	Replay() ([]Record, error)

	// Close releases the backend.
	Close() error
}

// Open resolves a journal reference to a backend: "" yields no journal,
// "badger://<dir>" opens an embedded Badger store, anything else is a
// JSON-lines file path.
func Open(ref string, logger *slog.Logger) (Journal, error) {
	switch {
	case ref == "":
		return nil, nil
	case strings.HasPrefix(ref, "badger://"):
		return NewBadgerJournal(strings.TrimPrefix(ref, "badger://"), logger)
	default:
		return NewFileJournal(ref)
	}
}

// =============================================================================
// File Journal
// =============================================================================

// FileJournal stores one canonical JSON record per line, append-only in
// normal operation. Erase rewrites the file atomically (temp + rename)
// so redacted content is unrecoverable from disk; this is the one
// deliberate exception to append-only.
type FileJournal struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// NewFileJournal opens (creating as needed) the journal file at path.
func NewFileJournal(path string) (*FileJournal, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	return &FileJournal{path: path, f: f}, nil
}

// Append writes rec as one JSON line. Fsync-free: the OS flushes on its
// own schedule, and replay tolerates a torn trailing line.
func (j *FileJournal) Append(rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.f == nil {
		return ErrClosed
	}
	if _, err := j.f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append journal line: %w", err)
	}
	return nil
}

// Erase rewrites the journal with the record at index replaced by rec.
func (j *FileJournal) Erase(index int, rec Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.f == nil {
		return ErrClosed
	}

	data, err := os.ReadFile(j.path)
	if err != nil {
		return fmt.Errorf("read journal for erase: %w", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if index < 0 || index >= len(lines) {
		return fmt.Errorf("erase index %d out of range (%d lines)", index, len(lines))
	}

	redacted, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal redacted record: %w", err)
	}
	lines[index] = string(redacted)

	tmp := j.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strings.Join(lines, "\n")+"\n"), 0640); err != nil {
		return fmt.Errorf("write journal temp file: %w", err)
	}

	// The old append handle points at the replaced inode after rename;
	// swap it for a fresh one.
	if err := j.f.Close(); err != nil {
		return fmt.Errorf("close journal before rewrite: %w", err)
	}
	j.f = nil
	if err := os.Rename(tmp, j.path); err != nil {
		return fmt.Errorf("rename journal temp file: %w", err)
	}
	f, err := os.OpenFile(j.path, os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return fmt.Errorf("reopen journal after erase: %w", err)
	}
	j.f = f
	return nil
}

// Replay reads records line by line, stopping quietly at the first
// partial or unparsable line (a torn write from an earlier crash).
func (j *FileJournal) Replay() ([]Record, error) {
	f, err := os.Open(j.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open journal for replay: %w", err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxJournalLine)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			break
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan journal: %w", err)
	}
	return records, nil
}

// Close closes the append handle. Idempotent.
func (j *FileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.f == nil {
		return nil
	}
	err := j.f.Close()
	j.f = nil
	return err
}

// Path returns the journal file path.
func (j *FileJournal) Path() string {
	return j.path
}

var _ Journal = (*FileJournal)(nil)
