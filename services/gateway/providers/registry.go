// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for attribution and network-use requirements.

package providers

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianGate/services/gateway/datatypes"
)

// ErrNotSupported is returned when an operation is attempted against a
// provider that does not implement it, such as generate against a hosted
// backend.
var ErrNotSupported = errors.New("operation not supported by provider")

// Binding wraps a Provider with the gateway's outbound resource controls:
// a hard cap on concurrent upstream requests and an optional request-rate
// smoother. Both gates respect ctx cancellation, so a client that gives up
// while queued does not consume upstream capacity.
type Binding struct {
	provider Provider
	sem      *semaphore.Weighted
	limiter  *rate.Limiter
}

func newBinding(p Provider, maxConcurrent int64, requestsPerSecond float64) *Binding {
	b := &Binding{provider: p}
	if maxConcurrent > 0 {
		b.sem = semaphore.NewWeighted(maxConcurrent)
	}
	if requestsPerSecond > 0 {
		burst := int(requestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		b.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
	return b
}

// acquire takes a concurrency slot and waits out the rate smoother. The
// returned release function must be called when the upstream exchange is
// finished, including the full lifetime of a stream.
func (b *Binding) acquire(ctx context.Context) (func(), error) {
	if b.sem != nil {
		if err := b.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
	}
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			if b.sem != nil {
				b.sem.Release(1)
			}
			return nil, err
		}
	}
	if b.sem == nil {
		return func() {}, nil
	}
	var once sync.Once
	return func() { once.Do(func() { b.sem.Release(1) }) }, nil
}

func (b *Binding) Name() string { return b.provider.Name() }

// Chat implements the Provider interface.
func (b *Binding) Chat(ctx context.Context, req datatypes.ChatRequest) (*datatypes.ChatResponse, error) {
	release, err := b.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return b.provider.Chat(ctx, req)
}

// ChatStream implements the Provider interface. The concurrency slot is
// held until the stream ends.
func (b *Binding) ChatStream(ctx context.Context, req datatypes.ChatRequest, callback StreamCallback) error {
	release, err := b.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return b.provider.ChatStream(ctx, req, callback)
}

// Generate forwards to the wrapped provider when it supports the legacy
// single-prompt contract, behind the same gates as Chat.
func (b *Binding) Generate(ctx context.Context, req datatypes.GenerateRequest) (*datatypes.GenerateResponse, error) {
	gen, ok := b.provider.(Generator)
	if !ok {
		return nil, ErrNotSupported
	}
	release, err := b.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return gen.Generate(ctx, req)
}

// GenerateStream forwards to the wrapped provider when supported.
func (b *Binding) GenerateStream(ctx context.Context, req datatypes.GenerateRequest, callback StreamCallback) error {
	gen, ok := b.provider.(Generator)
	if !ok {
		return ErrNotSupported
	}
	release, err := b.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return gen.GenerateStream(ctx, req, callback)
}

// Health and Models bypass the gates; probes must not queue behind chat
// traffic.
func (b *Binding) Health(ctx context.Context) bool { return b.provider.Health(ctx) }

func (b *Binding) Models(ctx context.Context) []string { return b.provider.Models(ctx) }

var (
	_ Provider  = (*Binding)(nil)
	_ Generator = (*Binding)(nil)
)

// Registry resolves provider identities to bindings. It is populated once
// at startup and read-only afterwards; a missing binding is a deployment
// gap, not a client error, and surfaces as provider_unavailable.
type Registry struct {
	mu       sync.RWMutex
	bindings map[string]*Binding
	logger   *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		bindings: make(map[string]*Binding),
		logger:   logger,
	}
}

// Bind registers a provider under its identity with the given resource
// caps. Zero values disable the respective gate.
func (r *Registry) Bind(p Provider, maxConcurrent int64, requestsPerSecond float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings[p.Name()] = newBinding(p, maxConcurrent, requestsPerSecond)
	r.logger.Info("Provider bound",
		"provider", p.Name(),
		"max_concurrent", maxConcurrent,
		"requests_per_second", requestsPerSecond)
}

// Lookup resolves a provider identity. Missing bindings return
// ErrNoProvider.
func (r *Registry) Lookup(name string) (*Binding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bindings[name]
	if !ok {
		return nil, ErrNoProvider
	}
	return b, nil
}

// ForModel runs the selector over the model name and resolves the result.
func (r *Registry) ForModel(model string) (*Binding, error) {
	return r.Lookup(PickProvider(model))
}

// Names returns the bound provider identities in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.bindings))
	for name := range r.bindings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Catalog aggregates model listings across all bound providers with
// provider attribution. Listing failures contribute nothing; the catalog
// is best-effort by contract.
func (r *Registry) Catalog(ctx context.Context) []datatypes.ModelInfo {
	var out []datatypes.ModelInfo
	for _, name := range r.Names() {
		b, err := r.Lookup(name)
		if err != nil {
			continue
		}
		for _, id := range b.Models(ctx) {
			out = append(out, datatypes.ModelInfo{ID: id, Provider: name})
		}
	}
	return out
}

// HealthReport probes every bound provider.
func (r *Registry) HealthReport(ctx context.Context) map[string]bool {
	report := make(map[string]bool)
	for _, name := range r.Names() {
		b, err := r.Lookup(name)
		if err != nil {
			continue
		}
		report[name] = b.Health(ctx)
	}
	return report
}
