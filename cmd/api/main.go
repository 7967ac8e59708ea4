package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"chat-backend/cmd"
	"chat-backend/internal/api"
	"chat-backend/internal/chat"
	"chat-backend/internal/database"
	"chat-backend/internal/llm"
)

type APIConfig struct {
	DatabaseURL      string   `env:"DATABASE_URL" envDefault:"chat.db"`
	UpstreamBaseURL  string   `env:"OPENROUTER_BASE_URL" envDefault:"https://openrouter.ai/api/v1"`
	UpstreamAPIKey   string   `env:"OPENROUTER_API_KEY"`
	Models           []string `env:"MODELS" envDefault:"deepseek/deepseek-r1,openai/gpt-4o-mini"`
	RefreshCatalog   bool     `env:"REFRESH_MODEL_CATALOG" envDefault:"false"`
	Transport        string   `env:"LLM_TRANSPORT" envDefault:"openai"`
	SessionCacheSize int      `env:"SESSION_CACHE_SIZE" envDefault:"64"`
	Passcode         string   `env:"PASSCODE"`
	CORSOrigins      []string `env:"CORS_ORIGINS" envDefault:"*"`
	APIPort          string   `env:"API_PORT" envDefault:"8001"`
}

func main() {
	log.Println("Starting API Server...")

	cmd.LoadEnvFile()

	var cfg APIConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	registry := llm.NewRegistry(cfg.UpstreamBaseURL, cfg.UpstreamAPIKey, cfg.Models)
	if cfg.RefreshCatalog {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		llm.RefreshRegistry(ctx, registry, llm.NewCatalogClient(cfg.UpstreamBaseURL))
		cancel()
	}

	var transport chat.Transport
	switch cfg.Transport {
	case "langchain":
		transport = llm.NewLangchainTransport()
	case "openai":
		transport = llm.NewOpenAITransport()
	default:
		log.Fatalf("unknown LLM_TRANSPORT %q", cfg.Transport)
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	// No request timeout middleware: message streams stay open for as long
	// as the upstream model keeps producing tokens.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Passcode"},
	}))

	authService := api.NewAuthService(cfg.Passcode)
	authService.AddRoutes(r)

	chatService := api.NewChatService(db, registry, transport, cfg.SessionCacheSize)
	r.Group(func(r chi.Router) {
		r.Use(api.PasscodeMiddleware(cfg.Passcode))
		chatService.AddRoutes(r)
	})

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: r,
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}
	}()

	log.Printf("API server listening on port %s", cfg.APIPort)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %s: %v\n", cfg.APIPort, err)
	}

	log.Println("Server stopped.")
}
