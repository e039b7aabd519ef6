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
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

// BadgerJournal persists records in an embedded BadgerDB, one key per
// record index. Synchronous writes are enabled: a journaled append is
// durable before the chain's critical section releases. Erase is a
// single-key overwrite, which makes redaction cheap on high-churn
// deployments where rewriting a JSONL file would hurt.
//
// Keys are 8-byte big-endian record indexes so the default iterator
// order is replay order.
type BadgerJournal struct {
	mu   sync.Mutex
	db   *badger.DB
	next uint64
}

// badgerLogger adapts slog to BadgerDB's logger interface. Badger's
// operational chatter is demoted to debug.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// NewBadgerJournal opens (creating as needed) a Badger-backed journal
// in dir. Pass a nil logger to silence Badger entirely.
func NewBadgerJournal(dir string, logger *slog.Logger) (*BadgerJournal, error) {
	if dir == "" {
		return nil, fmt.Errorf("badger journal requires a directory")
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create journal directory %s: %w", dir, err)
	}

	opts := badger.DefaultOptions(dir).
		WithSyncWrites(true).
		WithNumVersionsToKeep(1)
	if logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger journal: %w", err)
	}

	j := &BadgerJournal{db: db}
	if err := j.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Reverse: true})
		defer it.Close()
		it.Rewind()
		if it.Valid() {
			j.next = binary.BigEndian.Uint64(it.Item().Key()) + 1
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("scan badger journal: %w", err)
	}
	return j, nil
}

func recordKey(index uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, index)
	return key
}

// Append persists rec under the next index.
func (j *BadgerJournal) Append(rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.db == nil {
		return ErrClosed
	}
	err = j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(j.next), data)
	})
	if err != nil {
		return fmt.Errorf("badger append: %w", err)
	}
	j.next++
	return nil
}

// Erase overwrites the record at index with its redacted form.
func (j *BadgerJournal) Erase(index int, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal redacted record: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.db == nil {
		return ErrClosed
	}
	if index < 0 || uint64(index) >= j.next {
		return fmt.Errorf("erase index %d out of range (%d records)", index, j.next)
	}
	err = j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(uint64(index)), data)
	})
	if err != nil {
		return fmt.Errorf("badger erase: %w", err)
	}
	return nil
}

// Replay returns all records in index order.
func (j *BadgerJournal) Replay() ([]Record, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.db == nil {
		return nil, ErrClosed
	}

	var records []Record
	err := j.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var rec Record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("decode record %x: %w", it.Item().Key(), err)
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Close closes the database. Idempotent.
func (j *BadgerJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.db == nil {
		return nil
	}
	err := j.db.Close()
	j.db = nil
	return err
}

var _ Journal = (*BadgerJournal)(nil)
