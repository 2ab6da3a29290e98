// Package main is the entry point for the pagelift server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/jmylchreest/pagelift/internal/api"
	"github.com/jmylchreest/pagelift/internal/config"
	"github.com/jmylchreest/pagelift/internal/extract"
	"github.com/jmylchreest/pagelift/internal/fallback"
	"github.com/jmylchreest/pagelift/internal/fetch"
	"github.com/jmylchreest/pagelift/internal/llm"
	"github.com/jmylchreest/pagelift/internal/logging"
	"github.com/jmylchreest/pagelift/internal/router"
	"github.com/jmylchreest/pagelift/internal/schemagen"
	"github.com/jmylchreest/pagelift/internal/version"
)

func main() {
	// Initialize logger with TTY detection and format control
	logger := logging.SetDefault()

	v := version.Get()
	logger.Info("starting pagelift",
		"version", v.Version,
		"commit", v.Commit,
		"built", v.Date,
		"go_version", v.GoVersion,
	)

	cfg := config.Load()

	// One model client serves every collaborator; the model itself is
	// chosen per call.
	client, err := llm.NewHTTPClient(llm.ClientConfig{
		Provider:    cfg.LLMProvider,
		APIKey:      cfg.LLMAPIKey,
		Model:       cfg.LLMModel,
		BaseURL:     cfg.LLMBaseURL,
		MaxTokens:   cfg.LLMMaxTokens,
		Temperature: cfg.LLMTemperature,
	}, logger)
	if err != nil {
		logger.Error("failed to initialize model client", "error", err)
		os.Exit(1)
	}
	logger.Info("model client initialized",
		"provider", cfg.LLMProvider,
		"model", cfg.LLMModel,
		"intent_model", cfg.IntentModel,
	)

	// Fetch layer: plain HTTP for static pages, a browser pool for pages
	// that need rendering, one gate limiting concurrency per domain.
	static := fetch.NewStaticFetcher(cfg.FetchTimeout, logger)
	browser := fetch.NewBrowserFetcher(fetch.BrowserConfig{
		ChromePath: cfg.ChromePath,
		PoolSize:   cfg.BrowserPoolSize,
		MaxAge:     cfg.BrowserMaxAge,
		Logger:     logger,
	})

	extractor := extract.New(extract.Config{
		Static:      static,
		Browser:     browser,
		Policies:    fetch.NewPolicyTable(cfg.ExtraJSHeavyDomains),
		Gate:        fetch.NewDomainGate(cfg.DomainConcurrency),
		Fallback:    fallback.New(client, cfg.LLMModel, logger),
		MaxAttempts: cfg.MaxAttempts,
		BackoffBase: cfg.BackoffBase,
		Budget:      cfg.RequestBudget,
		Logger:      logger,
	})

	pipeline := api.NewPipeline(api.PipelineConfig{
		Generator: schemagen.New(client, cfg.LLMModel, logger),
		Router:    router.New(client, cfg.IntentModel, logger),
		Runner:    extractor,
		Client:    client,
		Model:     cfg.LLMModel,
		Logger:    logger,
	})
	extractionHandler := api.NewExtractionHandler(pipeline, logger)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "Retry-After"},
		MaxAge:         300,
	}))

	// Request size limit (1MB) - prevent large payload attacks
	r.Use(middleware.RequestSize(1 * 1024 * 1024))

	// Rate limit by IP
	r.Use(httprate.LimitByIP(cfg.RateLimit, time.Minute))

	// Main API with OpenAPI docs
	humaConfig := huma.DefaultConfig("Pagelift API", "1.0.0")
	humaConfig.Info.Description = "Natural-language web extraction API: describe the data you want from a page and get validated, schema-shaped JSON back."
	humaAPI := humachi.New(r, humaConfig)

	huma.Get(humaAPI, "/api/v1/health", api.HealthCheck)
	huma.Post(humaAPI, "/api/v1/extract", extractionHandler.Extract)

	// Kubernetes probe (hidden from docs)
	hiddenConfig := huma.DefaultConfig("Pagelift API", "1.0.0")
	hiddenConfig.DocsPath = ""
	hiddenConfig.OpenAPIPath = ""
	hiddenConfig.SchemasPath = ""
	hiddenAPI := humachi.New(r, hiddenConfig)
	huma.Get(hiddenAPI, "/healthz", api.Livez)

	// Write timeout has to outlast the extraction budget or long renders
	// get cut off mid-response.
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestBudget + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
		<-sigChan

		logger.Info("shutting down server")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}

		if err := browser.Close(); err != nil {
			logger.Error("browser pool shutdown error", "error", err)
		}
	}()

	logger.Info("starting server", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
