// Package server is the composition root: it opens the store, picks the AI
// client, builds services and handlers, and mounts them on a chi router.
//
// ROUTES:
//
//	GET  /health                          liveness, no store check
//	GET  /metrics                         Prometheus exposition
//	     /api/*                           rate limit → store check
//	POST /api/auth/register|login         public
//	GET  /api/auth/github/login|callback  public, only when configured
//	     /api/auth/me|logout|preferences  access guard
//	     /api/code/*, /api/history/*      access guard
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/codemind/internal/ai"
	"github.com/sakif/codemind/internal/ai/ollama"
	"github.com/sakif/codemind/internal/ai/openai"
	"github.com/sakif/codemind/internal/auth"
	"github.com/sakif/codemind/internal/codegen"
	"github.com/sakif/codemind/internal/config"
	"github.com/sakif/codemind/internal/handler"
	"github.com/sakif/codemind/internal/middleware"
	"github.com/sakif/codemind/internal/repository"
	"github.com/sakif/codemind/internal/repository/memory"
	sqliteRepo "github.com/sakif/codemind/internal/repository/sqlite"
	"github.com/sakif/codemind/internal/service"
)

// MemoryStoreWarning is attached to auth and history responses while the
// in-memory store is in use.
const MemoryStoreWarning = "Using in-memory database - data will be lost on server restart."

const shutdownTimeout = 30 * time.Second

// Server owns the store and the router. The store is closed when Start
// returns.
type Server struct {
	router *chi.Mux
	cfg    *config.Config
	logger *slog.Logger
	store  repository.Store
}

// New wires every dependency from cfg. Nothing here touches the network, so
// a misconfigured AI provider only shows up as demo-mode responses.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	store, err := openStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	s := &Server{
		router: chi.NewRouter(),
		cfg:    cfg,
		logger: logger,
		store:  store,
	}
	if err := s.setupRoutes(); err != nil {
		store.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// openStore picks SQLite when DATABASE_URL names a file and the in-memory
// store otherwise. A database that fails to open is fatal; silently
// switching to memory would lose writes the operator expects to keep.
func openStore(cfg *config.Config, logger *slog.Logger) (repository.Store, error) {
	path := cfg.SQLitePath()
	if path == "" {
		logger.Warn("DATABASE_URL not set, using in-memory store")
		return memory.New(), nil
	}

	if err := ensureDir(path); err != nil {
		return nil, err
	}
	db, err := sqliteRepo.New(path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	logger.Info("database connected", slog.String("path", path))
	return db, nil
}

// newAIClient maps AI_PROVIDER to an adapter. Gemini and OpenAI without a
// key still get a client; its calls fail with ai.ErrCredentials and the
// gateway falls back to demo output.
func newAIClient(cfg *config.Config, logger *slog.Logger) (ai.Client, error) {
	switch cfg.AIProvider {
	case config.ProviderOllama:
		return ollama.New(cfg.AIBaseURL, cfg.AIModel, cfg.AITimeout)
	case config.ProviderGemini, config.ProviderOpenAI:
		baseURL := cfg.AIBaseURL
		if baseURL == "" && cfg.AIProvider == config.ProviderGemini {
			baseURL = openai.GeminiBaseURL
		}
		if cfg.AIAPIKey == "" {
			logger.Warn("AI API key not set, code generation runs in demo mode",
				slog.String("provider", cfg.AIProvider))
		}
		return openai.New(openai.Config{
			Provider: cfg.AIProvider,
			APIKey:   cfg.AIAPIKey,
			BaseURL:  baseURL,
			Model:    cfg.AIModel,
			Timeout:  cfg.AITimeout,
		}), nil
	}
	return ai.Disabled{Name: cfg.AIProvider}, nil
}

func (s *Server) setupRoutes() error {
	// === Dependencies ===
	tokens, err := auth.NewTokenService(s.cfg.JWTSecret)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	client, err := newAIClient(s.cfg, s.logger)
	if err != nil {
		return fmt.Errorf("creating AI client: %w", err)
	}
	fallback, err := codegen.NewFallback()
	if err != nil {
		return fmt.Errorf("loading fallback templates: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	gateway := codegen.New(client, fallback, codegen.NewMetrics(registry), s.cfg.AITimeout, s.logger)

	var storeWarning string
	if !s.store.Durable() {
		storeWarning = MemoryStoreWarning
	}

	authService := service.NewAuthService(s.store.Users(), tokens, auth.NewPasswordService(), s.logger)
	historyService := service.NewHistoryService(s.store.Histories(), s.logger)
	codeService := service.NewCodeService(gateway, s.store.Histories(), s.store.ErrorLogs(), s.logger)

	var github *auth.GitHubProvider
	if s.cfg.GitHubEnabled() {
		github = auth.NewGitHubProvider(s.cfg.GitHubClientID, s.cfg.GitHubClientSecret, s.cfg.GitHubCallbackURL)
	}
	authHandler := handler.NewAuthHandler(authService, github, handler.CookieConfig{
		Secure:      !s.cfg.IsDevelopment(),
		RedirectURL: s.cfg.FrontendURL,
	}, storeWarning, s.logger)
	historyHandler := handler.NewHistoryHandler(historyService, storeWarning, s.logger)
	codeHandler := handler.NewCodeHandler(codeService, s.logger)

	requireAuth := auth.RequireAuth(tokens, s.store.Users(), s.logger)

	// === Global middleware ===
	// RequestID before Logger so every log line carries the id; RealIP
	// before the rate limiter so buckets key on the client, not the proxy.
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.SecureHeaders)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{s.cfg.FrontendURL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.router.NotFound(handler.HandleNotFound)
	s.router.Get("/health", handler.HandleHealth)
	s.router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// === API ===
	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.RateLimit(s.cfg.RateLimitMaxRequests, s.cfg.RateLimitWindow()))
		r.Use(middleware.RequireStore(s.store, s.logger))

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.HandleRegister)
			r.Post("/login", authHandler.HandleLogin)
			if authHandler.GitHubEnabled() {
				r.Get("/github/login", authHandler.HandleGitHubLogin)
				r.Get("/github/callback", authHandler.HandleGitHubCallback)
			}

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Get("/me", authHandler.HandleMe)
				r.Post("/logout", authHandler.HandleLogout)
				r.Put("/preferences", authHandler.HandleUpdatePreferences)
			})
		})

		r.Route("/code", func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/generate", codeHandler.HandleGenerate)
			r.Post("/fix", codeHandler.HandleFix)
			r.Post("/explain", codeHandler.HandleExplain)
			r.Post("/optimize", codeHandler.HandleOptimize)
			r.Post("/convert", codeHandler.HandleConvert)
			r.Get("/errors", codeHandler.HandleListErrors)
			r.Patch("/errors/{id}/resolve", codeHandler.HandleResolveError)
		})

		r.Route("/history", func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/", historyHandler.HandleList)
			r.Post("/", historyHandler.HandleCreate)
			// Registered before /{id} so "stats" is not taken as an id.
			r.Get("/stats", historyHandler.HandleStats)
			r.Get("/{id}", historyHandler.HandleGet)
			r.Put("/{id}", historyHandler.HandleUpdate)
			r.Delete("/{id}", historyHandler.HandleDelete)
			r.Patch("/{id}/favorite", historyHandler.HandleToggleFavorite)
		})
	})

	s.logger.Info("routes configured",
		slog.String("ai_provider", client.Provider()),
		slog.Bool("durable_store", s.store.Durable()),
		slog.Bool("github_oauth", authHandler.GitHubEnabled()),
	)
	return nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the store. Start calls it on the way out.
func (s *Server) Close() error {
	return s.store.Close()
}

// Start serves until SIGINT or SIGTERM, then drains in-flight requests for
// up to 30 seconds before closing the store.
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Generation can take the whole AI timeout.
		WriteTimeout: s.cfg.AITimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.cfg.Port),
			slog.String("env", s.cfg.Env),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.cfg.Port)),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}
	return nil
}

func ensureDir(dbPath string) error {
	if dbPath == ":memory:" {
		return nil
	}
	dir := filepath.Dir(dbPath)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating database directory %s: %w", dir, err)
	}
	return nil
}
