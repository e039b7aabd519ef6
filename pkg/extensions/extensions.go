// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package extensions defines the gateway's optional integration seams.
//
// The open source gateway is fully functional on its own: bearer tokens
// are verified against the configured HMAC secret and audit records live
// in the gateway's own hash chain. Deployments that need an external
// identity provider or a SIEM export implement these interfaces and
// inject them via ServiceOptions.
//
// # Thread Safety
//
// All implementations must be safe for concurrent use; the gateway calls
// them from many request goroutines at once.
package extensions

// ServiceOptions groups the gateway's extension points.
//
// All fields are optional. A nil AuthProvider selects the config-driven
// default (HMAC verification, or development mode when no secret is
// configured). A nil AuditExporter means audit records stay in the local
// chain only.
//
//	// Default wiring
//	svc, err := gateway.New(cfg, nil)
//
//	// External identity + SIEM export
//	opts := extensions.ServiceOptions{}.
//	    WithAuth(oidcProvider).
//	    WithAuditExport(splunkExporter)
//	svc, err := gateway.New(cfg, &opts)
type ServiceOptions struct {
	// AuthProvider validates bearer tokens into principals.
	AuthProvider AuthProvider

	// AuditExporter receives every audit record after it is chained.
	AuditExporter AuditExporter
}

// WithAuth returns a copy of opts with the given AuthProvider.
func (opts ServiceOptions) WithAuth(provider AuthProvider) ServiceOptions {
	opts.AuthProvider = provider
	return opts
}

// WithAuditExport returns a copy of opts with the given AuditExporter.
func (opts ServiceOptions) WithAuditExport(exporter AuditExporter) ServiceOptions {
	opts.AuditExporter = exporter
	return opts
}
