package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/sweetebin/agent-hippocrates/internal/agent"
	"github.com/sweetebin/agent-hippocrates/internal/config"
	"github.com/sweetebin/agent-hippocrates/internal/llm"
	"github.com/sweetebin/agent-hippocrates/internal/policy"
	"github.com/sweetebin/agent-hippocrates/internal/registry"
	"github.com/sweetebin/agent-hippocrates/internal/service"
	"github.com/sweetebin/agent-hippocrates/internal/store"
	handler "github.com/sweetebin/agent-hippocrates/internal/transport/http"
)

func main() {
	cfg := config.Load()

	log.Printf("Starting assistant service...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Database: %s", cfg.DatabaseURL)

	// Initialize store
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer db.Close()

	// Initialize chat client
	chatClient := llm.NewChatClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMTimeout)

	// Initialize handoff policy engine
	ctx := context.Background()
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		log.Fatalf("Failed to initialize policy engine: %v", err)
	}

	// Initialize registry and service
	models := agent.Models{
		Intake:     cfg.IntakeModel,
		Specialist: cfg.SpecialistModel,
		Vision:     cfg.VisionModel,
	}
	reg := registry.New(db, models)
	runner := agent.NewToolLoopRunner(chatClient, policyEngine, cfg.MaxToolTurns)
	svc := service.New(db, reg, runner, cfg.MessageBufferSize)

	// Initialize handler
	h := handler.NewHandler(svc)

	// Create Echo server
	server := echo.New()
	server.HideBanner = true

	// Middleware
	server.Use(middleware.Logger())
	server.Use(middleware.Recover())
	server.Use(middleware.CORS())

	// Register routes
	h.RegisterRoutes(server)

	// Start server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("API started on port %d", cfg.HTTPPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}

	log.Println("Service stopped")
}
