package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"voicebridge/internal/app"
	"voicebridge/internal/config"
	"voicebridge/pkg/types"
)

// Main entry point with comprehensive error handling and signal
// management. Graceful shutdown on SIGINT/SIGTERM ensures any live
// session is left and the room marked completed.
func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

// Separate run function enables testing and error handling.
func run() error {
	// STEP 1: Load .env if present, then configuration with precedence
	// (file > env > defaults)
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Skipping .env: %v", err)
	}
	configPath := os.Getenv("VOICEBRIDGE_CONFIG_FILE")
	cfg := config.LoadConfigWithPrecedence(configPath)

	// STEP 2: Resolve the signed-in identity (flags override env)
	role := flag.String("role", os.Getenv("VOICEBRIDGE_ROLE"), "role: student, educator or admin")
	userID := flag.String("user", os.Getenv("VOICEBRIDGE_USER_ID"), "user id")
	name := flag.String("name", os.Getenv("VOICEBRIDGE_USER_NAME"), "display name")
	server := flag.String("server", "", "backend base URL (overrides config)")
	flag.Parse()

	if *server != "" {
		cfg.Server.BaseURL = *server
	}
	identity := types.Identity{UserID: *userID, Name: *name, Role: *role}
	if err := identity.Validate(); err != nil {
		return fmt.Errorf("invalid identity (use -role, -user and -name): %w", err)
	}

	// STEP 3: Create application with configuration
	application, err := app.NewApplication(cfg, identity)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	// STEP 4: Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	// STEP 5: Start application
	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("application error: %w", err)
	}

	// STEP 6: Wait for shutdown signal
	sig := <-signalCh
	log.Printf("Received signal %v, shutting down gracefully", sig)

	// Timeout context prevents hanging shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := application.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	return nil
}
