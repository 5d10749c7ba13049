/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the rating engine server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store
  3. Optionally seed the rating table from a catalog file
  4. Create API handler and router
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port     HTTP server port (default: 8080)
  -db       SQLite database path (default: rating.db)
            Use ":memory:" for an in-memory database
  -catalog  Product catalog JSON to seed on startup (optional;
            "default" loads the built-in demo tariff)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

SEE ALSO:
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
  - factory/catalog.go: Catalog parsing and seeding
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/rating-engine/api"
	"github.com/warp/rating-engine/factory"
	"github.com/warp/rating-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "rating.db", "SQLite database path")
	catalogPath := flag.String("catalog", "", `catalog JSON file to seed on startup ("default" for built-in)`)
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Initialize handler
	handler := api.NewHandler(store, store)

	// Seed catalog if requested
	if *catalogPath != "" {
		raw := factory.DefaultCatalogJSON()
		if *catalogPath != "default" {
			data, err := os.ReadFile(*catalogPath)
			if err != nil {
				log.Fatalf("Failed to read catalog: %v", err)
			}
			raw = string(data)
		}
		catalog, err := factory.ParseCatalog(raw)
		if err != nil {
			log.Fatalf("Failed to parse catalog: %v", err)
		}
		n, err := catalog.Seed(context.Background(), store)
		if err != nil {
			log.Printf("Warning: catalog seed stopped after %d entries: %v", n, err)
		} else {
			log.Printf("Seeded %d rating entries", n)
		}
		for t, base := range catalog.BasePremiums {
			handler.Calculator.SetBasePremium(t, base)
		}
	}

	// Create router
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Rating engine listening on http://localhost:%d", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
