// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"

	"github.com/AleutianAI/AleutianGate/pkg/chain"
)

// AuditExporter ships audit records to an external sink.
//
// The gateway keeps its own hash-chained audit log in memory; every
// record appended there is also offered to the configured exporter.
// Export failures never block or fail the request that produced the
// record - the in-process chain remains the source of truth.
//
// Implementations must be safe for concurrent use by multiple goroutines.
// Export should return quickly; buffer internally if the sink is slow.
//
// # Open Source Behavior
//
// The default NopAuditExporter discards all records. The in-process
// audit chain still holds the most recent records and remains queryable
// and verifiable over HTTP.
//
// # Enterprise Implementation
//
// Enterprise versions send records to SIEM systems (Splunk, Datadog, ELK),
// cloud logging (CloudWatch, Stackdriver), or compliance databases.
//
// Example enterprise implementation:
//
//	type SplunkAuditExporter struct {
//	    client *splunk.Client
//	    index  string
//	}
//
//	func (e *SplunkAuditExporter) Export(ctx context.Context, rec chain.Record) error {
//	    return e.client.Index(ctx, e.index, rec)
//	}
//
//	func (e *SplunkAuditExporter) Close() error {
//	    return e.client.Flush()
//	}
type AuditExporter interface {
	// Export records a single audit chain record.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - rec: The sealed record, hash and linkage included
	//
	// Returns:
	//   - error: nil on success, error if the sink rejected the record
	Export(ctx context.Context, rec chain.Record) error

	// Close flushes any buffered records and releases sink resources.
	//
	// Call this during application shutdown to prevent record loss.
	// For unbuffered implementations, this may be a no-op.
	Close() error
}

// NopAuditExporter is the default audit exporter for open source.
//
// It discards all records. The in-process audit chain is unaffected.
//
// Thread-safe: This implementation has no mutable state.
//
// Example:
//
//	exporter := &NopAuditExporter{}
//	err := exporter.Export(ctx, rec)
//	// err == nil (record discarded)
type NopAuditExporter struct{}

// Export discards the record without recording it.
//
// Always returns nil (success) regardless of record content.
func (e *NopAuditExporter) Export(_ context.Context, _ chain.Record) error {
	return nil
}

// Close is a no-op since nothing is buffered.
//
// Always returns nil (success).
func (e *NopAuditExporter) Close() error {
	return nil
}

// Compile-time interface compliance check.
var _ AuditExporter = (*NopAuditExporter)(nil)
