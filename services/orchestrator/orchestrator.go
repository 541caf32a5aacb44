// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator provides the core orchestrator service for folio.
//
// This package contains the main Orchestrator type that coordinates all
// components of the service: HTTP routing, the LLM client, the moderation
// gate, the enrichment fetcher, the tool registry, the optional vector
// database, and observability infrastructure.
//
// # Usage
//
//	cfg := orchestrator.Config{Port: 12210}
//	svc, err := orchestrator.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	openai "github.com/sashabaranov/go-openai"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/folio/services/llm"
	"github.com/AleutianAI/folio/services/orchestrator/datatypes"
	"github.com/AleutianAI/folio/services/orchestrator/handlers"
	"github.com/AleutianAI/folio/services/orchestrator/observability"
	"github.com/AleutianAI/folio/services/orchestrator/routes"
	"github.com/AleutianAI/folio/services/orchestrator/services"
	"github.com/AleutianAI/folio/services/orchestrator/tools"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the orchestrator service.
//
// # Description
//
// Service abstracts the orchestrator lifecycle, enabling testing and
// alternative implementations. The interface follows the minimal surface
// area principle - only essential lifecycle methods are exposed.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run() blocks and should
// only be called once per instance.
//
// # Limitations
//
//   - No graceful shutdown method yet (planned for future)
//   - Run() blocks until server error
//
// # Assumptions
//
//   - Service is fully initialized before Run() is called
//   - Run() is called at most once per Service instance
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	Run() error

	// Router returns the underlying Gin engine for testing.
	//
	// # Limitations
	//
	//   - Should not be used to modify routes after construction
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds orchestrator configuration options.
//
// # Description
//
// Config centralizes all configuration for the orchestrator service.
// Values can be populated from environment variables, config files,
// or programmatically for testing.
//
// # Required Fields
//
// None - all fields have sensible defaults, though the service will not
// start without provider credentials (OPENAI_API_KEY).
//
// # Examples
//
//	// Minimal config (uses all defaults)
//	cfg := Config{}
//
//	// Full configuration
//	cfg := Config{
//	    Port:         12210,
//	    WeaviateURL:  "http://localhost:8080",
//	    OTelEndpoint: "localhost:4317",
//	    SearchAPIURL: "https://search.internal/v1",
//	    SearchAPIKey: "...",
//	    QuoteAPIKey:  "...",
//	}
type Config struct {
	// Port is the HTTP server port. Default: 12210
	Port int

	// WeaviateURL is the Weaviate vector database URL.
	// If empty, the search_documents tool and the document
	// administration routes are disabled.
	// Example: "http://localhost:8080"
	WeaviateURL string

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// Default: "folio-otel-collector:4317"
	OTelEndpoint string

	// SearchAPIURL is the web search provider endpoint. If empty, the
	// web_search tool and web enrichment are disabled.
	SearchAPIURL string

	// SearchAPIKey authenticates against the web search provider.
	SearchAPIKey string

	// QuoteAPIKey is the Alpha Vantage API key. If empty, price
	// enrichment is disabled.
	QuoteAPIKey string

	// DisableMetrics skips Prometheus metric registration. Metrics
	// are on by default; registration on the default registry is not
	// repeatable, so embedders running several services in one process
	// can opt out here.
	DisableMetrics bool
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// # Description
//
// service is the main implementation that coordinates:
//   - HTTP routing via Gin
//   - The streaming chat pipeline (moderation, normalization,
//     enrichment, tool loop)
//   - Optional Weaviate integration for document search
//   - OpenTelemetry tracing
//   - Prometheus metrics
//
// # Thread Safety
//
// Thread-safe after construction. All fields are read-only after New() returns.
//
// # Assumptions
//
//   - All external services (LLM, Weaviate, OTel) are reachable if configured
type service struct {
	config         Config
	router         *gin.Engine
	llmClient      llm.LLMClient
	moderator      *services.ModerationService
	enricher       *services.EnrichmentService
	registry       *tools.Registry
	weaviateClient *weaviate.Client
	tracerCleanup  func(context.Context)
}

// =============================================================================
// Constructor
// =============================================================================

// New creates a new orchestrator Service with the given configuration.
//
// # Description
//
// New initializes all orchestrator components:
//  1. Applies default configuration for missing values
//  2. Initializes OpenTelemetry tracing
//  3. Initializes Prometheus metrics
//  4. Creates the LLM client and the moderation gate
//  5. Creates the Weaviate client if URL provided
//  6. Creates the enrichment fetcher and the tool registry from
//     whatever providers are configured
//  7. Sets up HTTP routes
//
// Optional collaborators degrade rather than fail: without a search
// provider there is no web_search tool, without Weaviate there is no
// search_documents tool, without a quote key there is no price context.
//
// # Inputs
//
//   - cfg: Service configuration. Zero values use defaults.
//
// # Outputs
//
//   - Service: Ready-to-run orchestrator service
//   - error: Non-nil if initialization fails
//
// # Assumptions
//
//   - OPENAI_API_KEY (or the matching secret file) is set
//   - Network is available for external service connections
func New(cfg Config) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
	}

	// Initialize OpenTelemetry tracer
	cleanup, err := s.initTracer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	// Initialize Prometheus metrics
	if !s.config.DisableMetrics {
		observability.InitMetrics()
		slog.Info("Initialized Prometheus metrics for streaming")
	}

	// Initialize Weaviate client (optional)
	if err := s.initWeaviate(); err != nil {
		slog.Warn("Weaviate initialization failed, running without document search",
			"error", err)
		// Not fatal - continue without Weaviate
	}

	// Initialize LLM client and moderation gate
	if err := s.initLLMClient(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	if err := s.initModeration(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize moderation gate: %w", err)
	}

	// Initialize enrichment and tools from the configured providers
	if err := s.initEnrichmentAndTools(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize enrichment: %w", err)
	}

	// Setup HTTP router
	s.initRouter()

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until shutdown or error.
func (s *service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting orchestrator server", "port", s.config.Port)

	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12210
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "folio-otel-collector:4317"
	}
	return cfg
}

// initTracer initializes OpenTelemetry distributed tracing.
//
// # Description
//
// Sets up OTLP trace exporter to send spans to the configured collector.
//
// # Outputs
//
//   - func(context.Context): Cleanup function to call on shutdown
//   - error: Non-nil if tracer setup fails
//
// # Limitations
//
//   - Uses insecure gRPC connection (appropriate for internal networks)
//
// # Assumptions
//
//   - OTel collector is reachable at configured endpoint
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
		resource.WithAttributes(semconv.ServiceNameKey.String("orchestrator-service")))
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

// initWeaviate initializes the Weaviate vector database client.
//
// # Description
//
// Creates a Weaviate client if WeaviateURL is configured.
// Validates the URL format and ensures schema is created.
//
// # Outputs
//
//   - error: Non-nil if Weaviate initialization fails
//
// # Limitations
//
//   - Returns nil error if WeaviateURL is empty (optional dependency)
//
// # Assumptions
//
//   - Weaviate server is running and accessible
func (s *service) initWeaviate() error {
	weaviateURL := strings.Trim(s.config.WeaviateURL, "\"' ")

	if weaviateURL == "" || !strings.Contains(weaviateURL, "http") {
		slog.Info("Weaviate URL not configured, running without document search")
		return nil
	}

	parsedURL, err := url.Parse(weaviateURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return fmt.Errorf("invalid Weaviate URL: %s", weaviateURL)
	}

	clientConf := weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	}

	s.weaviateClient, err = weaviate.NewClient(clientConf)
	if err != nil {
		return fmt.Errorf("failed to create Weaviate client: %w", err)
	}

	datatypes.EnsureWeaviateSchema(s.weaviateClient)
	slog.Info("Weaviate client initialized", "url", weaviateURL)

	return nil
}

// initLLMClient initializes the LLM provider client.
func (s *service) initLLMClient() error {
	client, err := llm.NewOpenAIClient()
	if err != nil {
		return err
	}
	s.llmClient = client
	slog.Info("Using OpenAI LLM backend")
	return nil
}

// initModeration initializes the moderation gate.
//
// The gate shares provider credentials with the LLM client: the key
// comes from OPENAI_API_KEY or the mounted secret file.
func (s *service) initModeration() error {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		secretPath := "/run/secrets/openai_api_key"
		apiKeyBytes, err := os.ReadFile(secretPath)
		if err != nil {
			return fmt.Errorf("OPENAI_API_KEY not set and secret not found at %s", secretPath)
		}
		apiKey = strings.TrimSpace(string(apiKeyBytes))
	}

	moderator, err := services.NewModerationService(openai.NewClient(apiKey))
	if err != nil {
		return err
	}
	s.moderator = moderator
	return nil
}

// initEnrichmentAndTools wires the enrichment fetcher and the tool
// registry from whatever providers the configuration carries.
//
// # Description
//
// The web search client feeds both the enrichment fetcher and the
// web_search tool; the quote client feeds price enrichment; the
// Weaviate client feeds the search_documents tool. Each is optional
// and its absence only narrows what the pipeline can do.
func (s *service) initEnrichmentAndTools() error {
	var searchClient *services.WebSearchClient
	if s.config.SearchAPIURL != "" {
		var err error
		searchClient, err = services.NewWebSearchClient(s.config.SearchAPIURL, s.config.SearchAPIKey)
		if err != nil {
			return fmt.Errorf("web search client: %w", err)
		}
		slog.Info("Web search provider configured")
	} else {
		slog.Info("SEARCH_API_URL not set, web search disabled")
	}

	var quoteClient *services.QuoteClient
	if s.config.QuoteAPIKey != "" {
		var err error
		quoteClient, err = services.NewQuoteClient(s.config.QuoteAPIKey, services.NewQuoteGate())
		if err != nil {
			return fmt.Errorf("quote client: %w", err)
		}
		slog.Info("Quote provider configured")
	} else {
		slog.Info("ALPHA_VANTAGE_KEY not set, price enrichment disabled")
	}

	if searchClient != nil || quoteClient != nil {
		s.enricher = services.NewEnrichmentService(searchClient, quoteClient)
	}

	var toolSet []tools.Tool
	if searchClient != nil {
		webTool, err := tools.NewWebSearchTool(searchClient)
		if err != nil {
			return fmt.Errorf("web_search tool: %w", err)
		}
		toolSet = append(toolSet, webTool)
	}
	if s.weaviateClient != nil {
		docTool, err := tools.NewDocumentSearchTool(s.weaviateClient)
		if err != nil {
			return fmt.Errorf("search_documents tool: %w", err)
		}
		toolSet = append(toolSet, docTool)
	}
	if len(toolSet) > 0 {
		registry, err := tools.NewRegistry(toolSet...)
		if err != nil {
			return fmt.Errorf("tool registry: %w", err)
		}
		s.registry = registry
		slog.Info("Tool registry initialized", "tools", len(toolSet))
	} else {
		slog.Info("No tool providers configured, model runs without tools")
	}

	return nil
}

// initRouter sets up the Gin HTTP router with all routes.
//
// # Description
//
// Creates the Gin engine, applies middleware, and registers all routes.
// Routes are configured based on available dependencies (e.g., Weaviate).
//
// # Assumptions
//
//   - All dependencies (LLM client, moderation gate) are initialized
func (s *service) initRouter() {
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("orchestrator-service"))

	chatHandler := handlers.NewStreamingChatHandler(s.llmClient, s.moderator, s.enricher, s.registry)
	routes.SetupRoutes(s.router, chatHandler, s.weaviateClient)
}

// cleanup releases all resources held by the service.
//
// # Description
//
// Called when Run() exits or on initialization failure.
// Shuts down the tracer and any other cleanup tasks.
func (s *service) cleanup() {
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ Service = (*service)(nil)
