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

	"github.com/hvlab/guardchat/internal/adapter/foundry"
	"github.com/hvlab/guardchat/internal/config"
	"github.com/hvlab/guardchat/internal/guardrail"
	"github.com/hvlab/guardchat/internal/relay"
	"github.com/hvlab/guardchat/internal/session"
	"github.com/hvlab/guardchat/internal/timing"
	handler "github.com/hvlab/guardchat/internal/transport/http"
	"github.com/hvlab/guardchat/internal/workflow"
	"github.com/hvlab/guardchat/policy"
)

func main() {
	// Load configuration
	cfg := config.Load()

	log.Printf("Starting guardchat gateway...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Project Endpoint: %s", cfg.ProjectEndpoint)
	log.Printf("Workflow: %s", cfg.WorkflowName)
	log.Printf("Guardrail Agent: %s", cfg.GuardrailAgentName)

	// Initialize timing store and log
	store, err := timing.NewStore(cfg.TimingDatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize timing store: %v", err)
	}
	defer store.Close()
	timings := timing.NewLog(store)

	// Initialize platform client
	platform := foundry.NewPlatform(cfg.ProjectEndpoint, cfg.ProjectAPIKey, cfg.WorkflowTimeout)

	// Initialize local policy engine
	ctx := context.Background()
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		log.Fatalf("Failed to initialize policy engine: %v", err)
	}

	// Initialize the moderated pipeline
	moderator := guardrail.NewModerator(platform, cfg.GuardrailAgentName, policyEngine, cfg.GuardrailTimeout)
	generator := workflow.NewGenerator(platform, cfg.WorkflowName, cfg.WorkflowTimeout)
	cleaner := relay.NewCleanupAgent(platform, cfg.CleanupTimeout)
	coordinator := relay.NewCoordinator(moderator, generator, cleaner)

	// Initialize handler
	sessions := session.NewManager()
	h := handler.NewHandler(coordinator, platform, sessions, timings)

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

	log.Printf("Gateway started on port %d", cfg.HTTPPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down gateway...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}

	log.Println("Gateway stopped")
}
