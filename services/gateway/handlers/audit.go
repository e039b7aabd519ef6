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
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianGate/pkg/chain"
	"github.com/AleutianAI/AleutianGate/services/gateway/audit"
)

// auditListResponse is the body of GET /audit.
type auditListResponse struct {
	Entries []chain.Record `json:"entries"`
	Total   int            `json:"total"`
}

// HandleListAudit serves GET /audit. Filters: client (token subject or
// source address), status, include_erased; limit/offset pagination.
func HandleListAudit(log *audit.Log) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := audit.Filter{
			Client:        c.Query("client"),
			IncludeErased: c.Query("include_erased") == "true",
		}
		if s := c.Query("status"); s != "" {
			if v, err := strconv.Atoi(s); err == nil {
				filter.Status = v
			}
		}
		limit, offset := pagination(c)

		entries, total := log.List(filter, limit, offset)
		if entries == nil {
			entries = []chain.Record{}
		}
		c.JSON(http.StatusOK, auditListResponse{Entries: entries, Total: total})
	}
}

// HandleVerifyAudit serves GET /audit/verify.
func HandleVerifyAudit(log *audit.Log) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, log.Verify())
	}
}
