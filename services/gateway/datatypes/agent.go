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

// Agent is one entry in the static roster served by GET /agents.
type Agent struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	Type   string `json:"type"`
	Status string `json:"status"`
	Model  string `json:"model"`
}

// AgentsResponse is the body of GET /agents.
type AgentsResponse struct {
	Agents []Agent `json:"agents"`
	Count  int     `json:"count"`
}
