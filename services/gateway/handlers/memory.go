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

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianGate/pkg/chain"
	"github.com/AleutianAI/AleutianGate/services/gateway/audit"
	"github.com/AleutianAI/AleutianGate/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianGate/services/gateway/memstore"
	"github.com/AleutianAI/AleutianGate/services/gateway/observability"
)

// HandleListMemory serves GET /memory. Filters: key, type, and
// include_erased=true to surface redacted entries; limit/offset
// pagination.
func HandleListMemory(store *memstore.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := chain.Filter{
			Key:           c.Query("key"),
			Type:          c.Query("type"),
			IncludeErased: c.Query("include_erased") == "true",
		}
		limit, offset := pagination(c)

		entries, total := store.List(filter, limit, offset)
		if entries == nil {
			entries = []chain.Record{}
		}
		c.JSON(http.StatusOK, datatypes.MemoryListResponse{Entries: entries, Total: total})
	}
}

// HandleAppendMemory serves POST /memory, returning the sealed chain
// record so callers hold the hash their entry is addressable by.
func HandleAppendMemory(store *memstore.Store, metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.AppendMemoryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortValidation(c, []string{"request body must be valid JSON"})
			return
		}
		if msgs := req.Validate(); len(msgs) > 0 {
			abortValidation(c, msgs)
			return
		}

		rec, err := store.Append(req)
		if err != nil && rec.Hash == "" {
			audit.SetErrorTag(c, datatypes.ErrKindInternal)
			c.AbortWithStatusJSON(http.StatusInternalServerError,
				datatypes.NewError(datatypes.ErrKindInternal, "memory append failed"))
			return
		}
		if metrics != nil {
			metrics.RecordChainAppend("memory")
		}
		// A journal degradation still returns the in-memory record.
		c.JSON(http.StatusCreated, rec)
	}
}

// HandleGetMemory serves GET /memory/:key, resolving the key to its most
// recent entry.
func HandleGetMemory(store *memstore.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, err := store.Get(c.Param("key"))
		if err != nil {
			abortNotFound(c, "memory key not found")
			return
		}
		c.JSON(http.StatusOK, rec)
	}
}

// HandleEraseMemory serves DELETE /memory/:key: redactive erasure of
// every entry under the key. Chain linkage survives; the content does
// not.
func HandleEraseMemory(store *memstore.Store, metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Param("key")
		erased, err := store.Erase(key)
		switch {
		case errors.Is(err, memstore.ErrNotFound):
			abortNotFound(c, "memory key not found")
		case err != nil:
			audit.SetErrorTag(c, datatypes.ErrKindInternal)
			c.AbortWithStatusJSON(http.StatusInternalServerError,
				datatypes.NewError(datatypes.ErrKindInternal, "memory erase failed"))
		default:
			if metrics != nil {
				metrics.RecordChainErasures("memory", erased)
			}
			c.JSON(http.StatusOK, gin.H{"key": key, "erased": erased})
		}
	}
}

// HandleVerifyMemory serves GET /memory/verify.
func HandleVerifyMemory(store *memstore.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, store.Verify())
	}
}
