/*
main.go - Backend API server entry point

PURPOSE:
  Starts the alimony tracker API. Handles configuration, dependency
  injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (optional) and PENSAO_* environment variables
  2. Parse command-line flags (override the environment)
  3. Configure structured logging
  4. Initialize SQLite store (and seed a demo scenario if asked)
  5. Start the session janitor and the HTTP server

COMMAND-LINE FLAGS:
  -port    HTTP server port (env PENSAO_PORT, default 8080)
  -db      SQLite database path (env PENSAO_DB, default pensao.db)
           Use ":memory:" for an in-memory database
  -seed    Reset the database and load a demo scenario
  -demo    Expose /api/scenarios
  -env     .env file to load (default .env, missing is fine)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the janitor and close the database
  4. Exit

EXAMPLES:
  ./server -db="./data/pensao.db"
  ./server -db=":memory:" -seed=partial-payments -demo

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/alimony-tracker/api"
	"github.com/warp/alimony-tracker/config"
	"github.com/warp/alimony-tracker/logging"
	"github.com/warp/alimony-tracker/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	envFile := envFileFlag(os.Args[1:])
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}
	cfg := config.LoadServer()

	// Flags
	flag.String("env", envFile, ".env file to load")
	flag.StringVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	seed := flag.String("seed", "", fmt.Sprintf("load a demo scenario at startup %v", api.Scenarios()))
	demo := flag.Bool("demo", false, "expose the demo scenario endpoints")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.Setup(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	// Initialize handler
	handler := api.NewHandler(store,
		api.WithLogger(logger),
		api.WithFrontendURL(cfg.FrontendURL),
		api.WithSessionTTL(cfg.SessionTTL),
		api.WithSecureCookies(cfg.CookieSecure),
		api.WithAllowedOrigins(cfg.AllowedOrigins...),
		api.WithDemo(*demo),
	)

	if *seed != "" {
		if err := handler.SeedScenario(context.Background(), *seed); err != nil {
			return err
		}
		logger.Info("demo account ready", "email", api.DemoEmail, "password", api.DemoPassword)
	}

	janitor := api.NewSessionJanitor(store, logger)
	janitor.Start()
	defer janitor.Stop()

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.NewRouter(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", server.Addr, "db", cfg.DBPath, "demo", *demo)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-quit:
		logger.Info("shutting down server", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

// envFileFlag finds -env before flag parsing, since the .env file feeds the
// flag defaults.
func envFileFlag(args []string) string {
	for i, arg := range args {
		switch {
		case arg == "-env" || arg == "--env":
			if i+1 < len(args) {
				return args[i+1]
			}
		case len(arg) > 5 && arg[:5] == "-env=":
			return arg[5:]
		case len(arg) > 6 && arg[:6] == "--env=":
			return arg[6:]
		}
	}
	return ".env"
}
