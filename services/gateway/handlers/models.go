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

	"github.com/AleutianAI/AleutianGate/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianGate/services/gateway/providers"
)

// modelsTimeout bounds the aggregate catalog fetch. Listing is
// best-effort; a slow provider contributes nothing rather than stalling
// the response.
const modelsTimeout = 10 * time.Second

// HandleModels serves GET /v1/models: the per-provider model catalog.
func HandleModels(reg *providers.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), modelsTimeout)
		defer cancel()

		models := reg.Catalog(ctx)
		c.JSON(http.StatusOK, datatypes.ModelsResponse{
			Models: models,
			Total:  len(models),
		})
	}
}
