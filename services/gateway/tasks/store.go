// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tasks implements the gateway's task marketplace.
//
// Tasks move through a fixed state machine:
//
//	available --claim(agent)--> claimed --> in_progress --complete--> completed
//	available --cancel--> cancelled
//
// Every transition is journaled as a canonical-JSON lineage event on the
// task chain, and the in-memory state is rebuilt by replaying that chain
// at startup. The chain is the record of truth; the map is a projection.
package tasks

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"

	"github.com/AleutianAI/AleutianGate/pkg/chain"
	"github.com/AleutianAI/AleutianGate/services/gateway/datatypes"
)

var (
	// ErrNotFound is returned for unknown task IDs.
	ErrNotFound = errors.New("tasks: task not found")

	// ErrNotAvailable is returned when a claim hits a task that is not
	// available. Maps to 409 conflict on the wire.
	ErrNotAvailable = errors.New("tasks: not_available")

	// ErrBadTransition is returned when complete or cancel is attempted
	// from a state the machine does not permit.
	ErrBadTransition = errors.New("tasks: invalid status transition")
)

// Lineage event names. Stored in the chain record's type label and inside
// the canonical event body.
const (
	eventCreated   = "created"
	eventClaimed   = "claimed"
	eventCompleted = "completed"
	eventCancelled = "cancelled"
)

// lineageEvent is the canonical payload of one task transition.
type lineageEvent struct {
	Event       string                 `json:"event"`
	TaskID      string                 `json:"task_id"`
	Title       string                 `json:"title,omitempty"`
	Description string                 `json:"description,omitempty"`
	Priority    datatypes.TaskPriority `json:"priority,omitempty"`
	Tags        []string               `json:"tags,omitempty"`
	Skills      []string               `json:"skills,omitempty"`
	Agent       string                 `json:"agent,omitempty"`
	Summary     string                 `json:"summary,omitempty"`
}

// Filter selects tasks for List. Empty fields match everything.
type Filter struct {
	Status   datatypes.TaskStatus
	Priority datatypes.TaskPriority
	Agent    string
}

// Store is the in-memory marketplace projection over the lineage chain.
//
// A single mutex guards the projection; the chain has its own internal
// critical section, and lineage appends happen under the store mutex so
// chain order matches transition order.
type Store struct {
	mu      sync.RWMutex
	tasks   map[string]*datatypes.Task
	lineage *chain.Chain
	logger  *slog.Logger
}

// New creates a store over the lineage chain, rebuilding state from any
// replayed records. Records that fail to decode are skipped with a
// warning rather than poisoning startup; erased lineage records decode as
// nothing and are skipped the same way.
func New(lineage *chain.Chain, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		tasks:   make(map[string]*datatypes.Task),
		lineage: lineage,
		logger:  logger,
	}

	records, _ := lineage.List(chain.Filter{IncludeErased: true}, 0, 0)
	for _, rec := range records {
		if rec.Erased {
			continue
		}
		var ev lineageEvent
		if err := json.Unmarshal([]byte(rec.Content), &ev); err != nil {
			logger.Warn("Skipping undecodable task lineage record", "hash", rec.Hash, "error", err)
			continue
		}
		s.apply(ev, rec.TimestampNS)
	}
	if len(records) > 0 {
		logger.Info("Task marketplace rebuilt from lineage chain",
			"events", len(records), "tasks", len(s.tasks))
	}
	return s
}

// apply folds one lineage event into the projection. Used only during
// replay; live transitions mutate state directly and then journal.
func (s *Store) apply(ev lineageEvent, ns int64) {
	switch ev.Event {
	case eventCreated:
		s.tasks[ev.TaskID] = &datatypes.Task{
			ID:          ev.TaskID,
			Title:       ev.Title,
			Description: ev.Description,
			Priority:    ev.Priority,
			Status:      datatypes.StatusAvailable,
			Tags:        ev.Tags,
			Skills:      ev.Skills,
			CreatedNS:   ns,
		}
	case eventClaimed:
		if t, ok := s.tasks[ev.TaskID]; ok {
			t.Status = datatypes.StatusClaimed
			t.Agent = ev.Agent
			t.ClaimedNS = ns
		}
	case eventCompleted:
		if t, ok := s.tasks[ev.TaskID]; ok {
			t.Status = datatypes.StatusCompleted
			t.Agent = ev.Agent
			t.Summary = ev.Summary
			t.CompletedNS = ns
		}
	case eventCancelled:
		if t, ok := s.tasks[ev.TaskID]; ok {
			t.Status = datatypes.StatusCancelled
		}
	default:
		s.logger.Warn("Unknown task lineage event", "event", ev.Event, "task_id", ev.TaskID)
	}
}

// journal canonicalizes ev and appends it to the lineage chain. The
// returned timestamp is the chain's, so projection timestamps always
// equal lineage timestamps.
func (s *Store) journal(ev lineageEvent) (int64, error) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return 0, fmt.Errorf("marshal lineage event: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return 0, fmt.Errorf("canonicalize lineage event: %w", err)
	}

	rec, err := s.lineage.Append(chain.Entry{
		Content: string(canonical),
		Key:     ev.TaskID,
		Type:    ev.Event,
	})
	if errors.Is(err, chain.ErrClosed) {
		return 0, err
	}
	if err != nil {
		// In-memory chain append succeeded; only the journal write
		// degraded. The transition stands.
		s.logger.Warn("Task lineage journal degraded", "task_id", ev.TaskID, "error", err)
	}
	return rec.TimestampNS, nil
}

// Create adds a task in the available state. Priority defaults to medium.
func (s *Store) Create(req datatypes.CreateTaskRequest) (datatypes.Task, error) {
	priority := req.Priority
	if priority == "" {
		priority = datatypes.PriorityMedium
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	ns, err := s.journal(lineageEvent{
		Event:       eventCreated,
		TaskID:      id,
		Title:       req.Title,
		Description: req.Description,
		Priority:    priority,
		Tags:        req.Tags,
		Skills:      req.Skills,
	})
	if err != nil {
		return datatypes.Task{}, err
	}

	t := &datatypes.Task{
		ID:          id,
		Title:       req.Title,
		Description: req.Description,
		Priority:    priority,
		Status:      datatypes.StatusAvailable,
		Tags:        req.Tags,
		Skills:      req.Skills,
		CreatedNS:   ns,
	}
	s.tasks[id] = t
	return *t, nil
}

// Claim moves an available task to claimed and records the holder.
// Claiming anything else fails with ErrNotAvailable, including a repeat
// claim by the same agent.
func (s *Store) Claim(id, agent string) (datatypes.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return datatypes.Task{}, ErrNotFound
	}
	if t.Status != datatypes.StatusAvailable {
		return datatypes.Task{}, ErrNotAvailable
	}

	ns, err := s.journal(lineageEvent{Event: eventClaimed, TaskID: id, Agent: agent})
	if err != nil {
		return datatypes.Task{}, err
	}

	t.Status = datatypes.StatusClaimed
	t.Agent = agent
	t.ClaimedNS = ns
	return *t, nil
}

// Complete finishes a claimed or in-progress task, recording the agent
// and an optional summary.
func (s *Store) Complete(id, agent, summary string) (datatypes.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return datatypes.Task{}, ErrNotFound
	}
	if t.Status != datatypes.StatusClaimed && t.Status != datatypes.StatusInProgress {
		return datatypes.Task{}, ErrBadTransition
	}

	ns, err := s.journal(lineageEvent{Event: eventCompleted, TaskID: id, Agent: agent, Summary: summary})
	if err != nil {
		return datatypes.Task{}, err
	}

	t.Status = datatypes.StatusCompleted
	t.Agent = agent
	t.Summary = summary
	t.CompletedNS = ns
	return *t, nil
}

// Cancel withdraws an available task from the marketplace.
func (s *Store) Cancel(id string) (datatypes.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return datatypes.Task{}, ErrNotFound
	}
	if t.Status != datatypes.StatusAvailable {
		return datatypes.Task{}, ErrBadTransition
	}

	if _, err := s.journal(lineageEvent{Event: eventCancelled, TaskID: id}); err != nil {
		return datatypes.Task{}, err
	}

	t.Status = datatypes.StatusCancelled
	return *t, nil
}

// Get returns a copy of the task with the given ID.
func (s *Store) Get(id string) (datatypes.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return datatypes.Task{}, ErrNotFound
	}
	return *t, nil
}

// List returns tasks matching f, sorted by priority descending then
// creation time ascending, paginated by limit and offset. The total is
// the match count before pagination.
func (s *Store) List(f Filter, limit, offset int) ([]datatypes.Task, int) {
	s.mu.RLock()
	var matched []datatypes.Task
	for _, t := range s.tasks {
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.Priority != "" && t.Priority != f.Priority {
			continue
		}
		if f.Agent != "" && t.Agent != f.Agent {
			continue
		}
		matched = append(matched, *t)
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if ri, rj := matched[i].Priority.Rank(), matched[j].Priority.Rank(); ri != rj {
			return ri > rj
		}
		return matched[i].CreatedNS < matched[j].CreatedNS
	})

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

// Verify walks the lineage chain.
func (s *Store) Verify() chain.VerifyResult {
	return s.lineage.Verify()
}
