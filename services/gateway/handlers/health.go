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
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianGate/services/gateway/providers"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version,omitempty"`
	UptimeSec int64           `json:"uptime_seconds"`
	Providers map[string]bool `json:"providers"`
}

// HandleHealth serves GET /health: instance liveness plus a probe of
// every bound provider, bounded by the probe budget. A dead provider
// does not fail the instance; clients read per-provider availability
// from the body.
func HandleHealth(reg *providers.Registry, version string, startedAt time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), ProbeTimeout)
		defer cancel()

		c.JSON(http.StatusOK, HealthResponse{
			Status:    "ok",
			Version:   version,
			UptimeSec: int64(time.Since(startedAt).Seconds()),
			Providers: reg.HealthReport(ctx),
		})
	}
}

// HandleReady serves GET /ready. Reaching this handler at all means
// startup completed, so the answer is static.
func HandleReady() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ready": true})
	}
}
