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

import "github.com/go-playground/validator/v10"

// =============================================================================
// Task Enumerations
// =============================================================================

// TaskPriority orders tasks in the marketplace. Listing sorts by priority
// descending, so critical tasks surface first.
type TaskPriority string

const (
	PriorityLow      TaskPriority = "low"
	PriorityMedium   TaskPriority = "medium"
	PriorityHigh     TaskPriority = "high"
	PriorityCritical TaskPriority = "critical"
)

// Valid reports whether p is a known priority.
func (p TaskPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Rank returns the sort weight of the priority. Higher ranks sort first.
func (p TaskPriority) Rank() int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}

// TaskStatus is the marketplace lifecycle state.
//
// Transitions are confined to:
//
//	available --claim(agent)--> claimed --> in_progress --complete--> completed
//	available --cancel--> cancelled
//
// complete is accepted from either claimed or in_progress; in_progress
// exists for an explicit start transition that agents may adopt later.
type TaskStatus string

const (
	StatusAvailable  TaskStatus = "available"
	StatusClaimed    TaskStatus = "claimed"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
	StatusCancelled  TaskStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusAvailable, StatusClaimed, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// =============================================================================
// Task Entity
// =============================================================================

// Task is one unit of work in the marketplace.
//
// Timestamps are epoch nanoseconds, matching the chain records that
// journal the task's lifecycle. Zero means the event has not happened.
type Task struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Priority    TaskPriority `json:"priority"`
	Status      TaskStatus   `json:"status"`
	Agent       string       `json:"agent,omitempty"`
	Tags        []string     `json:"tags,omitempty"`
	Skills      []string     `json:"skills,omitempty"`
	Summary     string       `json:"summary,omitempty"`
	CreatedNS   int64        `json:"created_ns"`
	ClaimedNS   int64        `json:"claimed_ns,omitempty"`
	CompletedNS int64        `json:"completed_ns,omitempty"`
}

// =============================================================================
// Task Request / Response Types
// =============================================================================

// taskValidate is the validator instance for task datatypes.
var taskValidate = validator.New()

// CreateTaskRequest is the body of POST /tasks.
//
// Priority defaults to medium when omitted; an unknown priority string is
// a validation error rather than a silent downgrade.
type CreateTaskRequest struct {
	Title       string       `json:"title" validate:"required"`
	Description string       `json:"description,omitempty"`
	Priority    TaskPriority `json:"priority,omitempty"`
	Tags        []string     `json:"tags,omitempty"`
	Skills      []string     `json:"skills,omitempty"`
}

// Validate validates the CreateTaskRequest fields.
func (r *CreateTaskRequest) Validate() []string {
	var msgs []string
	if err := taskValidate.Struct(r); err != nil {
		msgs = append(msgs, "title is required")
	}
	if r.Priority != "" && !r.Priority.Valid() {
		msgs = append(msgs, "priority must be one of low, medium, high, critical")
	}
	return msgs
}

// ClaimTaskRequest is the body of POST /tasks/{id}/claim.
type ClaimTaskRequest struct {
	Agent string `json:"agent" validate:"required"`
}

// Validate validates the ClaimTaskRequest fields.
func (r *ClaimTaskRequest) Validate() []string {
	if err := taskValidate.Struct(r); err != nil {
		return []string{"agent is required"}
	}
	return nil
}

// CompleteTaskRequest is the body of POST /tasks/{id}/complete.
type CompleteTaskRequest struct {
	Agent   string `json:"agent" validate:"required"`
	Summary string `json:"summary,omitempty"`
}

// Validate validates the CompleteTaskRequest fields.
func (r *CompleteTaskRequest) Validate() []string {
	if err := taskValidate.Struct(r); err != nil {
		return []string{"agent is required"}
	}
	return nil
}

// TaskListResponse is the body of GET /tasks.
type TaskListResponse struct {
	Tasks []Task `json:"tasks"`
	Total int    `json:"total"`
}
