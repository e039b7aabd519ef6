// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gateway provides the trust-boundary gateway service.
//
// The gateway is the single HTTP ingress for untrusted agents: it
// verifies agent bearer tokens, rate-limits before any token work,
// routes chat traffic to AI providers whose credentials only the
// gateway holds, and records every request outcome in a hash-chained
// audit log. Shared memory and task coordination ride the same chain
// machinery.
//
// # Enterprise Integration
//
// The gateway supports dependency injection via extensions.ServiceOptions:
//   - AuthProvider: external identity (OIDC, API keys)
//   - AuditExporter: SIEM export of chained audit records
//
// # Usage
//
// Open source (config-driven defaults):
//
//	cfg := gateway.Config{Port: 12290, AuthSecret: secret}
//	svc, err := gateway.New(cfg, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	svc.Run()
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/awnumar/memguard"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/AleutianGate/pkg/chain"
	"github.com/AleutianAI/AleutianGate/pkg/extensions"
	"github.com/AleutianAI/AleutianGate/pkg/token"
	"github.com/AleutianAI/AleutianGate/services/gateway/audit"
	"github.com/AleutianAI/AleutianGate/services/gateway/memstore"
	"github.com/AleutianAI/AleutianGate/services/gateway/middleware"
	"github.com/AleutianAI/AleutianGate/services/gateway/observability"
	"github.com/AleutianAI/AleutianGate/services/gateway/providers"
	"github.com/AleutianAI/AleutianGate/services/gateway/routes"
	"github.com/AleutianAI/AleutianGate/services/gateway/tasks"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the gateway service.
//
// Implementations must be safe for concurrent use. Run() blocks until
// shutdown and should only be called once per instance.
type Service interface {
	// Run starts the HTTP server and blocks until a shutdown signal
	// or a fatal server error. Cleanup (chain close, tracer flush,
	// secret wipe) is automatic on return.
	Run() error

	// Router returns the underlying Gin engine for testing. Callers
	// must not modify the route table.
	Router() *gin.Engine
}

// shutdownTimeout bounds how long in-flight requests get to drain.
const shutdownTimeout = 10 * time.Second

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// All fields are read-only after New() returns; the per-request state
// lives in the stores, which carry their own locking.
type service struct {
	config Config
	opts   extensions.ServiceOptions
	logger *slog.Logger
	router *gin.Engine

	auditChain  *chain.Chain
	memoryChain *chain.Chain
	taskChain   *chain.Chain

	auditLog *audit.Log
	memory   *memstore.Store
	tasks    *tasks.Store
	registry *providers.Registry

	limiterStore  middleware.CounterStore
	metricsHandle http.Handler

	tracerCleanup func(context.Context)
	startedAt     time.Time
}

// =============================================================================
// Constructor
// =============================================================================

// New creates a gateway Service with the given configuration.
//
// Initialization order: defaults, YAML overlay, auth provider, tracing,
// the three hash chains (replaying journals), stores, rate limiter,
// provider bindings, metrics, routes. If opts is nil the config-driven
// defaults apply: HMAC token verification when AuthSecret is set,
// development mode otherwise, and no audit export.
//
// A missing or failing journal is fatal here, not degraded: refusing to
// start beats silently running without the durability the operator
// asked for.
func New(cfg Config, opts *extensions.ServiceOptions) (Service, error) {
	s := &service{
		config:    applyConfigDefaults(cfg),
		logger:    slog.Default(),
		startedAt: time.Now(),
	}
	if opts != nil {
		s.opts = *opts
	}

	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}

	ov, err := loadOverlay(s.config.ConfigPath)
	if err != nil {
		return nil, err
	}

	authProvider := s.initAuth()

	if s.config.OTelEndpoint != "" {
		cleanup, err := s.initTracer()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}
		s.tracerCleanup = cleanup
	}

	if err := s.initChains(); err != nil {
		s.cleanup()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	s.metricsHandle = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	exporter := s.opts.AuditExporter
	if exporter == nil {
		exporter = &extensions.NopAuditExporter{}
	}
	// Every exported record is one audit chain append, so the metric
	// rides the exporter seam.
	s.auditLog = audit.New(s.auditChain, &countingExporter{next: exporter, metrics: metrics}, s.logger)
	s.memory = memstore.New(s.memoryChain)
	s.tasks = tasks.New(s.taskChain, s.logger)

	limiter := middleware.NewLimiter(s.initLimiterStore(), ov.limits(), s.logger)

	s.initRegistry(ov)

	s.router = gin.New()
	if s.config.OTelEndpoint != "" {
		s.router.Use(otelgin.Middleware("gateway-service"))
	}
	routes.SetupRoutes(s.router, routes.Deps{
		Logger:         s.logger,
		Auth:           authProvider,
		Limiter:        limiter,
		Audit:          s.auditLog,
		Memory:         s.memory,
		Tasks:          s.tasks,
		Providers:      s.registry,
		Metrics:        metrics,
		MetricsHandler: s.metricsHandle,
		Agents:         ov.Agents,
		Version:        s.config.Version,
		StartedAt:      s.startedAt,
	})

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until SIGINT/SIGTERM or a fatal
// server error.
func (s *service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf("%s:%d", s.config.Bind, s.config.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting gateway server", "addr", addr, "version", s.config.Version)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down gateway server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// initAuth resolves the auth provider: injected > HMAC verifier >
// development mode. Development mode is the one configuration that can
// silently weaken the trust boundary, so it is announced at Warn.
func (s *service) initAuth() extensions.AuthProvider {
	if s.opts.AuthProvider != nil {
		return s.opts.AuthProvider
	}
	if s.config.AuthSecret != "" {
		return token.NewVerifier([]byte(s.config.AuthSecret))
	}
	s.logger.Warn("No auth secret configured, running in development mode: " +
		"all requests are accepted as an anonymous admin")
	return &extensions.DevAuthProvider{}
}

// initChains opens the three independent hash chains. The audit chain
// without a journal is ring-bounded so an agent cannot grow gateway
// memory without bound through sheer request volume.
func (s *service) initChains() error {
	open := func(name, ref string, maxRecords int) (*chain.Chain, error) {
		journal, err := chain.Open(ref, s.logger)
		if err != nil {
			return nil, fmt.Errorf("open %s journal: %w", name, err)
		}
		ch, err := chain.New(chain.Options{
			Journal:    journal,
			MaxRecords: maxRecords,
			Logger:     s.logger.With("chain", name),
		})
		if err != nil {
			return nil, fmt.Errorf("open %s chain: %w", name, err)
		}
		return ch, nil
	}

	auditRing := 0
	if s.config.AuditJournal == "" {
		auditRing = auditRingSize
	}

	var err error
	if s.auditChain, err = open("audit", s.config.AuditJournal, auditRing); err != nil {
		return err
	}
	if s.memoryChain, err = open("memory", s.config.MemoryJournal, 0); err != nil {
		return err
	}
	if s.taskChain, err = open("task", s.config.TaskJournal, 0); err != nil {
		return err
	}
	return nil
}

// initLimiterStore selects the rate-limit counter backend. A Redis URL
// that fails to parse falls back to the in-process store rather than
// refusing to start; the limiter itself already fails open on store
// errors, so startup follows the same posture.
func (s *service) initLimiterStore() middleware.CounterStore {
	if s.config.RedisURL != "" {
		store, err := middleware.NewRedisStore(s.config.RedisURL)
		if err != nil {
			s.logger.Warn("Redis rate-limit store unavailable, using in-process store",
				"error", err)
		} else {
			s.logger.Info("Rate limiting backed by Redis")
			s.limiterStore = store
			return store
		}
	}
	mem := middleware.NewMemoryStore()
	s.limiterStore = mem
	return mem
}

// initRegistry binds every provider the configuration carries a
// credential for. Ollama is always bound; it is the default route and
// needs no credential.
func (s *service) initRegistry(ov overlay) {
	s.registry = providers.NewRegistry(s.logger)

	bind := func(p providers.Provider) {
		b := ov.budget(p.Name())
		s.registry.Bind(p, b.MaxConcurrent, b.RequestsPerSecond)
		s.logger.Info("Bound provider", "provider", p.Name())
	}

	bind(providers.NewOllamaProvider(s.config.OllamaURL))
	if s.config.OpenAIKey != "" {
		bind(providers.NewOpenAIProvider(s.config.OpenAIKey))
	}
	if s.config.AnthropicKey != "" {
		bind(providers.NewAnthropicProvider(s.config.AnthropicKey, ""))
	}
	if s.config.GeminiKey != "" {
		bind(providers.NewGeminiProvider(s.config.GeminiKey, ""))
	}
	if s.config.TogetherKey != "" {
		bind(providers.NewTogetherProvider(s.config.TogetherKey))
	}
}

// initTracer initializes OpenTelemetry distributed tracing over an
// insecure gRPC connection, appropriate for internal collector
// networks.
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("gateway-service")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}

	return cleanup, nil
}

// cleanup releases all resources held by the service. Called when Run()
// exits or on a construction failure partway through.
func (s *service) cleanup() {
	for name, ch := range map[string]*chain.Chain{
		"audit":  s.auditChain,
		"memory": s.memoryChain,
		"task":   s.taskChain,
	} {
		if ch == nil {
			continue
		}
		if err := ch.Close(); err != nil {
			s.logger.Warn("Chain close error", "chain", name, "error", err)
		}
	}

	if closer, ok := s.limiterStore.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			s.logger.Warn("Rate-limit store close error", "error", err)
		}
	}

	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}

	// Wipe the auth secret enclave along with everything else memguard
	// holds.
	memguard.Purge()
}

// =============================================================================
// Audit Export Instrumentation
// =============================================================================

// countingExporter counts audit chain appends on their way to the
// configured exporter.
type countingExporter struct {
	next    extensions.AuditExporter
	metrics *observability.Metrics
}

func (e *countingExporter) Export(ctx context.Context, rec chain.Record) error {
	e.metrics.RecordChainAppend("audit")
	return e.next.Export(ctx, rec)
}

func (e *countingExporter) Close() error {
	return e.next.Close()
}

var _ extensions.AuditExporter = (*countingExporter)(nil)

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ Service = (*service)(nil)
