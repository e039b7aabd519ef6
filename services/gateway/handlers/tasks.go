// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianGate/services/gateway/audit"
	"github.com/AleutianAI/AleutianGate/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianGate/services/gateway/observability"
	"github.com/AleutianAI/AleutianGate/services/gateway/tasks"
)

// HandleListTasks serves GET /tasks with status/priority/agent equality
// filters and limit/offset pagination. Ordering is priority descending,
// creation time ascending.
func HandleListTasks(store *tasks.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := tasks.Filter{
			Status:   datatypes.TaskStatus(c.Query("status")),
			Priority: datatypes.TaskPriority(c.Query("priority")),
			Agent:    c.Query("agent"),
		}
		limit, offset := pagination(c)

		list, total := store.List(filter, limit, offset)
		if list == nil {
			list = []datatypes.Task{}
		}
		c.JSON(http.StatusOK, datatypes.TaskListResponse{Tasks: list, Total: total})
	}
}

// HandleCreateTask serves POST /tasks.
func HandleCreateTask(store *tasks.Store, metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.CreateTaskRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortValidation(c, []string{"request body must be valid JSON"})
			return
		}
		if msgs := req.Validate(); len(msgs) > 0 {
			abortValidation(c, msgs)
			return
		}

		task, err := store.Create(req)
		if err != nil {
			abortTaskError(c, err)
			return
		}
		if metrics != nil {
			metrics.RecordChainAppend("tasks")
		}
		c.JSON(http.StatusCreated, task)
	}
}

// HandleClaimTask serves POST /tasks/:id/claim.
func HandleClaimTask(store *tasks.Store, metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.ClaimTaskRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortValidation(c, []string{"request body must be valid JSON"})
			return
		}
		if msgs := req.Validate(); len(msgs) > 0 {
			abortValidation(c, msgs)
			return
		}

		task, err := store.Claim(c.Param("id"), req.Agent)
		if err != nil {
			abortTaskError(c, err)
			return
		}
		if metrics != nil {
			metrics.RecordChainAppend("tasks")
		}
		c.JSON(http.StatusOK, task)
	}
}

// HandleCompleteTask serves POST /tasks/:id/complete.
func HandleCompleteTask(store *tasks.Store, metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.CompleteTaskRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortValidation(c, []string{"request body must be valid JSON"})
			return
		}
		if msgs := req.Validate(); len(msgs) > 0 {
			abortValidation(c, msgs)
			return
		}

		task, err := store.Complete(c.Param("id"), req.Agent, req.Summary)
		if err != nil {
			abortTaskError(c, err)
			return
		}
		if metrics != nil {
			metrics.RecordChainAppend("tasks")
		}
		c.JSON(http.StatusOK, task)
	}
}

// abortTaskError maps store errors onto the wire taxonomy. A claim on a
// non-available task is the canonical 409; other bad transitions share
// the conflict kind with a distinct message.
func abortTaskError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, tasks.ErrNotFound):
		abortNotFound(c, "task not found")
	case errors.Is(err, tasks.ErrNotAvailable):
		audit.SetErrorTag(c, datatypes.ErrKindConflict)
		c.AbortWithStatusJSON(http.StatusConflict,
			datatypes.NewError(datatypes.ErrKindConflict, "not_available"))
	case errors.Is(err, tasks.ErrBadTransition):
		audit.SetErrorTag(c, datatypes.ErrKindConflict)
		c.AbortWithStatusJSON(http.StatusConflict,
			datatypes.NewError(datatypes.ErrKindConflict, "invalid status transition"))
	default:
		audit.SetErrorTag(c, datatypes.ErrKindInternal)
		c.AbortWithStatusJSON(http.StatusInternalServerError,
			datatypes.NewError(datatypes.ErrKindInternal, "task operation failed"))
	}
}

// pagination reads limit/offset query parameters. Invalid or negative
// values collapse to the defaults (no limit, zero offset).
func pagination(c *gin.Context) (limit, offset int) {
	if v, err := strconv.Atoi(c.DefaultQuery("limit", "0")); err == nil && v > 0 {
		limit = v
	}
	if v, err := strconv.Atoi(c.DefaultQuery("offset", "0")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}
