package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/enrollment-engine/internal/api"
	"github.com/ignite/enrollment-engine/internal/app"
	"github.com/ignite/enrollment-engine/internal/config"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("address %s is already in use: %v", addr, err)
	}
	ln.Close()
	return nil
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config")
	withWorkers := flag.Bool("with-workers", false, "run the enrollment driver and recommendation scheduler in-process")
	flag.Parse()

	log.Println("[server] Starting enrollment engine API")

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if os.Getenv("DATABASE_URL") != "" {
		log.Println("[config] DATABASE_URL env override active")
	}

	addr := cfg.Server.Addr()
	if err := checkPortAvailable(addr); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}
	defer a.Close()

	server := api.NewServer(cfg.Server, a.APIDeps())

	if *withWorkers && cfg.Engine.Enabled {
		driver := a.EnrollmentDriver()
		driver.Start()
		defer driver.Stop()
		log.Printf("[server] Enrollment driver started (every %s)", cfg.Engine.TickInterval())
	}
	if *withWorkers && cfg.Recommendations.AutoTasks {
		scheduler := a.RecommendationScheduler()
		scheduler.Start()
		defer scheduler.Stop()
		log.Printf("[server] Recommendation scheduler started (run hour %02d:00 UTC)", cfg.Recommendations.RunHourUTC)
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("[server] Listening on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	log.Println("[server] Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[server] Shutdown error: %v", err)
	}
	log.Println("[server] Stopped")
}
