// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package audit records every terminal gateway response in a hash-chained
// append-only log.
//
// Events are canonicalized with RFC 8785 JSON before they are chained, so
// verification recomputes the same digest in any process. The audit chain
// is independent of the memory and task chains: each subsystem owns its
// own GENESIS origin, and one subsystem's appends can never invalidate
// another's verification.
//
// # What Is Recorded
//
// Client identity (token subject or source address), method, path, final
// status, the provider identity and model of proxied calls, and a short
// error tag on failure paths. Provider credential material is never part
// of an event; the trust boundary holds through the audit surface too.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gowebpki/jcs"

	"github.com/AleutianAI/AleutianGate/pkg/chain"
	"github.com/AleutianAI/AleutianGate/pkg/extensions"
	"github.com/AleutianAI/AleutianGate/services/gateway/middleware"
)

// recordType labels audit records in the chain so listings can filter by
// kind if other record kinds ever share the chain.
const recordType = "http_request"

// Event is one audited gateway operation.
//
// Serialized through RFC 8785 before appending; the canonical bytes are
// what the chain digests and what verifiers recompute against.
type Event struct {
	ID        string `json:"id"`
	RequestID string `json:"request_id,omitempty"`
	Client    string `json:"client"`
	Role      string `json:"role,omitempty"`
	Dev       bool   `json:"dev,omitempty"`
	Method    string `json:"method"`
	Path      string `json:"path"`
	Status    int    `json:"status"`
	Provider  string `json:"provider,omitempty"`
	Model     string `json:"model,omitempty"`
	Streamed  bool   `json:"streamed,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Log is the chain-backed audit log.
//
// Appends go to the chain first; the configured exporter is offered the
// sealed record afterwards and can never block or fail the request that
// produced it.
type Log struct {
	chain    *chain.Chain
	exporter extensions.AuditExporter
	logger   *slog.Logger
}

// New creates an audit log over ch. A nil exporter defaults to the no-op
// exporter; a nil logger defaults to slog.Default().
func New(ch *chain.Chain, exporter extensions.AuditExporter, logger *slog.Logger) *Log {
	if exporter == nil {
		exporter = &extensions.NopAuditExporter{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{chain: ch, exporter: exporter, logger: logger}
}

// Record canonicalizes and chains one event.
//
// Journal degradation is logged, not surfaced: the response that produced
// the event has already been decided and must not fail retroactively.
func (l *Log) Record(ctx context.Context, ev Event) chain.Record {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}

	content, err := canonicalize(ev)
	if err != nil {
		l.logger.Error("Audit event canonicalization failed, event dropped",
			"path", ev.Path, "error", err)
		return chain.Record{}
	}

	rec, err := l.chain.Append(chain.Entry{
		Content: content,
		Key:     ev.Client,
		Type:    recordType,
	})
	if err != nil {
		// Record is still chained in memory; only durability degraded.
		l.logger.Warn("Audit journal degraded", "error", err)
	}

	if err := l.exporter.Export(ctx, rec); err != nil {
		l.logger.Warn("Audit export failed", "hash", rec.Hash, "error", err)
	}
	return rec
}

// Filter selects audit records for List.
type Filter struct {
	// Client matches the event's client identity exactly.
	Client string

	// Status matches the event's final HTTP status. 0 matches all.
	Status int

	// IncludeErased includes redacted records in the listing.
	IncludeErased bool
}

// List returns matching events in append order with the chain records
// they live in, plus the total match count before pagination.
//
// Status filtering needs the event body, so erased records (whose body is
// the redaction marker) match status filters never, and client filters
// via the sidecar key label only.
func (l *Log) List(f Filter, limit, offset int) ([]chain.Record, int) {
	records, _ := l.chain.List(chain.Filter{
		Key:           f.Client,
		Type:          recordType,
		IncludeErased: f.IncludeErased,
	}, 0, 0)

	if f.Status != 0 {
		var filtered []chain.Record
		for _, rec := range records {
			var ev Event
			if rec.Erased || json.Unmarshal([]byte(rec.Content), &ev) != nil {
				continue
			}
			if ev.Status == f.Status {
				filtered = append(filtered, rec)
			}
		}
		records = filtered
	}

	total := len(records)
	if offset > total {
		offset = total
	}
	records = records[offset:]
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, total
}

// Verify walks the audit chain.
func (l *Log) Verify() chain.VerifyResult {
	return l.chain.Verify()
}

// Erase redacts one audit record by hash. Administrative surface; the
// chain linkage of later records is preserved.
func (l *Log) Erase(hash string) error {
	return l.chain.Erase(hash)
}

// canonicalize renders ev as RFC 8785 canonical JSON.
func canonicalize(ev Event) (string, error) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("marshal audit event: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize audit event: %w", err)
	}
	return string(canonical), nil
}

// =============================================================================
// Gin Integration
// =============================================================================

// Context keys used by handlers to annotate the audit record of the
// in-flight request.
const (
	ctxKeyProvider = "aleutian_gateway_audit_provider"
	ctxKeyModel    = "aleutian_gateway_audit_model"
	ctxKeyStreamed = "aleutian_gateway_audit_streamed"
	ctxKeyError    = "aleutian_gateway_audit_error"
)

// SetProvider tags the current request's audit event with the provider
// identity that served it. Identity only, never credential material.
func SetProvider(c *gin.Context, provider string) { c.Set(ctxKeyProvider, provider) }

// SetModel tags the current request's audit event with the model string.
func SetModel(c *gin.Context, model string) { c.Set(ctxKeyModel, model) }

// SetStreamed marks the current request as a streaming response.
func SetStreamed(c *gin.Context) { c.Set(ctxKeyStreamed, true) }

// SetErrorTag tags the audit event with a short error kind (one of the
// wire taxonomy tags, or a provider drop signal). Free text is not
// accepted here so upstream detail cannot leak into the chain.
func SetErrorTag(c *gin.Context, tag string) { c.Set(ctxKeyError, tag) }

// Middleware emits one audit record per terminal response.
//
// Registered early so it regains control even when a later middleware
// (rate limit, auth) aborts the request: denials are audited exactly like
// successes. Public probe paths are skipped to keep the chain free of
// health-check noise.
func Middleware(log *Log) gin.HandlerFunc {
	return func(c *gin.Context) {
		if middleware.IsPublicPath(c.Request.URL.Path) {
			c.Next()
			return
		}

		c.Next()

		ev := Event{
			RequestID: middleware.GetRequestID(c),
			Client:    middleware.ClientID(c),
			Method:    c.Request.Method,
			Path:      c.Request.URL.Path,
			Status:    c.Writer.Status(),
		}
		if p := middleware.GetPrincipal(c); p != nil {
			ev.Role = p.Role
			ev.Dev = p.Dev
		}
		ev.Provider = c.GetString(ctxKeyProvider)
		ev.Model = c.GetString(ctxKeyModel)
		ev.Streamed = c.GetBool(ctxKeyStreamed)
		ev.Error = c.GetString(ctxKeyError)
		if ev.Error == "" && ev.Status >= 400 {
			ev.Error = defaultErrorTag(ev.Status)
		}

		log.Record(c.Request.Context(), ev)
	}
}

// defaultErrorTag maps a status class to the taxonomy tag handlers would
// have set themselves. Covers aborts that bypass handler code entirely.
func defaultErrorTag(status int) string {
	switch status {
	case 400:
		return "validation_error"
	case 401:
		return "unauthorized"
	case 403:
		return "forbidden"
	case 404:
		return "not_found"
	case 409:
		return "conflict"
	case 429:
		return "rate_limited"
	case 502:
		return "provider_error"
	case 504:
		return "timeout"
	default:
		return "status_" + strconv.Itoa(status)
	}
}

// Timestamp formats an event append time for human-facing CLI output.
func Timestamp(rec chain.Record) string {
	return time.Unix(0, rec.TimestampNS).UTC().Format(time.RFC3339Nano)
}
