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

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianGate/services/gateway/datatypes"
)

// HandleAgents serves GET /agents: the static roster configured at
// startup. The roster is informational; it grants nothing, and agents
// absent from it authenticate exactly like listed ones.
func HandleAgents(roster []datatypes.Agent) gin.HandlerFunc {
	return func(c *gin.Context) {
		if roster == nil {
			roster = []datatypes.Agent{}
		}
		c.JSON(http.StatusOK, datatypes.AgentsResponse{
			Agents: roster,
			Count:  len(roster),
		})
	}
}
