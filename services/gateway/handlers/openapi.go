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
)

// openAPIDocument is the static schema served on GET /openapi.json.
// Hand-maintained; kept deliberately terse. Update it when the route
// table in routes.SetupRoutes changes.
const openAPIDocument = `{
  "openapi": "3.0.3",
  "info": {
    "title": "AleutianGate",
    "description": "Trust-boundary gateway mediating AI-provider access for untrusted agents. Agents authenticate with their own bearer tokens and never hold provider credentials.",
    "version": "1.0.0"
  },
  "components": {
    "securitySchemes": {
      "bearerAuth": {"type": "http", "scheme": "bearer", "bearerFormat": "JWT"}
    },
    "schemas": {
      "Error": {
        "type": "object",
        "required": ["error"],
        "properties": {
          "error": {"type": "string"},
          "message": {"type": "string"},
          "errors": {"type": "array", "items": {"type": "string"}},
          "retry_after": {"type": "integer"}
        }
      },
      "ChatRequest": {
        "type": "object",
        "required": ["model", "messages"],
        "properties": {
          "model": {"type": "string"},
          "messages": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["role"],
              "properties": {"role": {"type": "string"}, "content": {"type": "string"}}
            }
          },
          "stream": {"type": "boolean"},
          "temperature": {"type": "number", "minimum": 0, "maximum": 2},
          "max_tokens": {"type": "integer", "minimum": 0}
        }
      },
      "ChatResponse": {
        "type": "object",
        "properties": {
          "model": {"type": "string"},
          "message": {
            "type": "object",
            "properties": {"role": {"type": "string"}, "content": {"type": "string"}}
          },
          "prompt_eval_count": {"type": "integer"},
          "eval_count": {"type": "integer"}
        }
      },
      "ChainRecord": {
        "type": "object",
        "properties": {
          "hash": {"type": "string"},
          "prev_hash": {"type": "string"},
          "timestamp_ns": {"type": "integer", "format": "int64"},
          "content": {"type": "string"},
          "key": {"type": "string"},
          "type": {"type": "string"},
          "truth_state": {"type": "integer"},
          "erased": {"type": "boolean"}
        }
      },
      "VerifyResult": {
        "type": "object",
        "properties": {
          "valid": {"type": "boolean"},
          "total": {"type": "integer"},
          "checked": {"type": "integer"},
          "first_invalid": {"type": "string"}
        }
      },
      "Task": {
        "type": "object",
        "properties": {
          "id": {"type": "string"},
          "title": {"type": "string"},
          "description": {"type": "string"},
          "priority": {"type": "string", "enum": ["low", "medium", "high", "critical"]},
          "status": {"type": "string", "enum": ["available", "claimed", "in_progress", "completed", "cancelled"]},
          "agent": {"type": "string"},
          "tags": {"type": "array", "items": {"type": "string"}},
          "skills": {"type": "array", "items": {"type": "string"}},
          "summary": {"type": "string"},
          "created_ns": {"type": "integer", "format": "int64"},
          "claimed_ns": {"type": "integer", "format": "int64"},
          "completed_ns": {"type": "integer", "format": "int64"}
        }
      }
    }
  },
  "security": [{"bearerAuth": []}],
  "paths": {
    "/health": {"get": {"security": [], "summary": "Instance and provider availability", "responses": {"200": {"description": "OK"}}}},
    "/ready": {"get": {"security": [], "summary": "Readiness", "responses": {"200": {"description": "Ready"}}}},
    "/metrics": {"get": {"security": [], "summary": "Prometheus metrics", "responses": {"200": {"description": "Metrics exposition"}}}},
    "/openapi.json": {"get": {"security": [], "summary": "This document", "responses": {"200": {"description": "Schema"}}}},
    "/v1/chat": {"post": {"summary": "Unified chat, unary or SSE stream", "responses": {"200": {"description": "Normalized response or text/event-stream"}, "400": {"description": "validation_error"}, "502": {"description": "provider_error or provider_unavailable"}, "504": {"description": "timeout"}}}},
    "/v1/chat/ws": {"get": {"summary": "WebSocket chat with the same envelope", "responses": {"101": {"description": "Switching protocols"}}}},
    "/v1/generate": {"post": {"summary": "Legacy prompt completion", "responses": {"200": {"description": "Generate response"}}}},
    "/v1/models": {"get": {"summary": "Per-provider model catalog", "responses": {"200": {"description": "Model list"}}}},
    "/agents": {"get": {"summary": "Static agent roster", "responses": {"200": {"description": "Roster"}}}},
    "/tasks": {
      "get": {"summary": "List tasks", "responses": {"200": {"description": "Task list"}}},
      "post": {"summary": "Create task", "responses": {"201": {"description": "Created"}}}
    },
    "/tasks/{id}/claim": {"post": {"summary": "Claim an available task", "responses": {"200": {"description": "Claimed"}, "409": {"description": "conflict"}}}},
    "/tasks/{id}/complete": {"post": {"summary": "Complete a claimed task", "responses": {"200": {"description": "Completed"}, "409": {"description": "conflict"}}}},
    "/memory": {
      "get": {"summary": "List memory entries", "responses": {"200": {"description": "Entries"}}},
      "post": {"summary": "Append a memory entry", "responses": {"201": {"description": "Chained record"}}}
    },
    "/memory/verify": {"get": {"summary": "Verify the memory chain", "responses": {"200": {"description": "Verification result"}}}},
    "/memory/{key}": {
      "get": {"summary": "Read the latest entry for a key", "responses": {"200": {"description": "Record"}, "404": {"description": "not_found"}}},
      "delete": {"summary": "Redactively erase all entries for a key", "responses": {"200": {"description": "Erasure summary"}, "404": {"description": "not_found"}}}
    },
    "/audit": {"get": {"summary": "List audit records", "responses": {"200": {"description": "Records"}}}},
    "/audit/verify": {"get": {"summary": "Verify the audit chain", "responses": {"200": {"description": "Verification result"}}}}
  }
}`

// HandleOpenAPI serves GET /openapi.json.
func HandleOpenAPI() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json", []byte(openAPIDocument))
	}
}
